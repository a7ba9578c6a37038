package jeedom

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiPath = "/core/api/jeeApi.php"

	// DefaultRequestTimeout bounds a single request, whoever is waiting on it
	DefaultRequestTimeout = 30 * time.Second

	// Jeedom answers with a short JSON value; anything bigger is not a state
	maxBody = 64 * 1024
)

// Sender issues one command to the Jeedom server
type Sender interface {
	Send(ctx context.Context, command string) ([]byte, error)
}

// Client talks to the Jeedom JSON API. It never retries.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// NewClient builds a client for the Jeedom server at baseURL (e.g. http://jeedom.local)
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
	}
}

// CommandURL returns the URL that executes command.
// An empty command is still a valid request.
func (c *Client) CommandURL(command string) string {
	return fmt.Sprintf("%s%s?apikey=%s&type=cmd&id=%s", c.base, apiPath, url.QueryEscape(c.apiKey), url.QueryEscape(command))
}

// Send executes command and returns the raw response body
func (c *Client) Send(ctx context.Context, command string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.CommandURL(command), nil)
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &TransportError{Command: command, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{Command: command, Err: fmt.Errorf("http status %s", resp.Status)}
	}
	return body, nil
}
