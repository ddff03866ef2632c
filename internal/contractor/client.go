// Package contractor is the thin client for the contractor directory
// service. The engine only asks whether contractors exist and are eligible
// for assignment; ratings and service-area filtering stay on the directory
// side.
package contractor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sunfin/quote-engine/internal/service"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// VerifyEligible checks every contractor against the directory. Eligibility
// is authorization-critical, so an unreachable directory fails the call
// instead of degrading.
func (c *Client) VerifyEligible(ctx context.Context, contractorIDs []uuid.UUID) error {
	for _, id := range contractorIDs {
		url := fmt.Sprintf("%s/contractors/%s/eligibility", c.baseURL, id)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: contractor directory: %v", service.ErrDependencyUnavailable, err)
		}
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			return fmt.Errorf("%w: contractor %s is not eligible", service.ErrInvalidInput, id)
		default:
			return fmt.Errorf("%w: contractor directory returned %d", service.ErrDependencyUnavailable, resp.StatusCode)
		}
	}
	return nil
}
