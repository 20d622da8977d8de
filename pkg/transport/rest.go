package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("server temporarily unavailable")

// Settings is the server's automation configuration.
type Settings struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
}

// Status carries the server's headline metrics.
type Status struct {
	Metrics map[string]float64 `json:"metrics"`
}

// Collaborators are the request/response endpoints alongside the streams.
type Collaborators interface {
	Settings(ctx context.Context) (*Settings, error)
	Status(ctx context.Context) (*Status, error)
}

var _ Collaborators = (*Client)(nil)

// Settings fetches the automation settings.
func (c *Client) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if err := c.getJSON(ctx, c.paths.SettingsPath, &s); err != nil {
		return nil, fmt.Errorf("fetching settings: %w", err)
	}
	return &s, nil
}

// Status fetches the current metrics.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var s Status
	if err := c.getJSON(ctx, c.paths.StatusPath, &s); err != nil {
		return nil, fmt.Errorf("fetching status: %w", err)
	}
	if s.Metrics == nil {
		s.Metrics = map[string]float64{}
	}
	return &s, nil
}

// getJSON performs a GET through the circuit breaker and decodes the body
// into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, c.restTimeout)
		defer cancel()

		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if err := checkStatus(resp); err != nil {
			return nil, err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		return nil, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}
