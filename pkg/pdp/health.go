//
//  Copyright © Manetu Inc. All rights reserved.
//

package pdp

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// Status is the outcome of an engine reachability probe.
type Status struct {
	Up     bool   `json:"up"`
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// CheckHealth probes the engine's health surface with a bounded timeout.
//
// CheckHealth never returns an error; failure is reported as Up=false with
// the error detail attached. The probe is purely observational and never
// gates enforcement decisions (that is the circuit breaker's job).
func (c *Client) CheckHealth(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	down := func(err error) Status {
		logger.Warnf(agent, "health", "engine health check failed: %v", err)
		return Status{Up: false, URL: c.baseURL, Detail: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return down(errors.Wrap(err, "building health request"))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return down(errors.Wrap(err, "calling policy engine"))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return down(errors.Errorf("engine health returned status %d", resp.StatusCode))
	}

	return Status{Up: true, URL: c.baseURL}
}
