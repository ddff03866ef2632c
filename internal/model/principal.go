package model

import "github.com/google/uuid"

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleCustomer   Role = "CUSTOMER"
	RoleContractor Role = "CONTRACTOR"
)

// Principal is the verified caller identity supplied by the auth service token.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool      { return p.Role == RoleAdmin }
func (p Principal) IsCustomer() bool   { return p.Role == RoleCustomer }
func (p Principal) IsContractor() bool { return p.Role == RoleContractor }
