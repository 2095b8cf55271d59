package assets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Checker asks the asset server whether an asset id still exists.
// With no base URL configured there is nothing to ask; every asset is
// assumed present, which keeps local runs commit-able.
type Checker struct {
	BaseURL string
	Client  *http.Client
}

// Exists checks one asset id with a HEAD request. 404 means absent;
// any other failure is an error rather than a verdict.
func (c *Checker) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	if c.BaseURL == "" {
		return true, nil
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL+"/"+id.String(), nil)
	if err != nil {
		return false, fmt.Errorf("assets: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("assets: check %s: %w", id, err)
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	default:
		return false, fmt.Errorf("assets: check %s: unexpected status %s", id, resp.Status)
	}
}
