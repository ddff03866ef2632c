package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sunfin/quote-engine/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Parser validates access tokens issued by the auth service and extracts the
// caller principal. Token issuance lives outside this service.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

type claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func (p *Parser) Parse(token string) (model.Principal, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return model.Principal{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: bad user_id", ErrInvalidToken)
	}

	role := model.Role(strings.ToUpper(strings.TrimSpace(c.Role)))
	switch role {
	case model.RoleAdmin, model.RoleCustomer, model.RoleContractor:
	default:
		return model.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, c.Role)
	}

	return model.Principal{UserID: userID, Role: role}, nil
}
