// Package suggest asks an external code-suggestion service to review a
// sketch.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/buckleypaul/benchlab/internal/logging"
)

// maxResponseBytes bounds the suggestion text read from the service.
const maxResponseBytes = 1 << 20

// ErrUpstream is returned when the service answers with a non-2xx status.
var ErrUpstream = errors.New("suggestion service failed")

// Client posts sketches to the suggestion service.
type Client struct {
	url    string
	action string
	http   *http.Client
	logger *logging.Logger
}

// NewClient creates a client for the service at endpoint. action is sent
// with every request and selects the service's code-review prompt.
func NewClient(endpoint, action string, timeout time.Duration, logger *logging.Logger) *Client {
	return &Client{
		url:    endpoint,
		action: action,
		http:   &http.Client{Timeout: timeout},
		logger: logging.OrNop(logger).WithComponent("suggest"),
	}
}

// Suggest sends code as a form post and returns the service's answer
// verbatim.
func (c *Client) Suggest(ctx context.Context, code string) (string, error) {
	form := url.Values{}
	form.Set("action", c.action)
	form.Set("text", code)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return "", fmt.Errorf("%w: %s: %s", ErrUpstream, res.Status, msg)
		}
		return "", fmt.Errorf("%w: %s", ErrUpstream, res.Status)
	}
	c.logger.Debug("suggestion received", "bytes", len(body), "duration", time.Since(start))
	return string(body), nil
}
