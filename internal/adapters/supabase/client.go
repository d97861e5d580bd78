// Package supabase talks to the two REST surfaces of a Supabase project:
// PostgREST for the videos table and Storage for the rendered artifacts.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"manimrender/internal/pkg/errors"
)

// Client holds the base URL and service key shared by both surfaces.
type Client struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewClient builds a client. A zero timeout means 60s.
func NewClient(baseURL, serviceKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the project URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Authorization", "Bearer "+c.key)
	return req, nil
}

// do sends req and returns the response body when the status is one of ok.
// Any other status becomes an error coded from the status.
func (c *Client) do(req *http.Request, op string, ok ...int) ([]byte, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, req.Method+" request failed")
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, op, "read response body")
	}

	for _, s := range ok {
		if res.StatusCode == s {
			return body, nil
		}
	}
	return nil, errors.FromHTTPStatus(res.StatusCode, op, string(body))
}

func (c *Client) doJSON(ctx context.Context, method, url, op string, in any, out any, ok ...int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, op, "encode request body")
		}
		body = bytes.NewReader(b)
	}

	req, err := c.newRequest(ctx, method, url, body)
	if err != nil {
		return errors.Wrap(err, op, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if method == http.MethodPatch || method == http.MethodPost {
		req.Header.Set("Prefer", "return=minimal")
	} else {
		req.Header.Set("Prefer", "return=representation")
	}

	resBody, err := c.do(req, op, ok...)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resBody, out); err != nil {
		return errors.Wrap(err, op, "decode response body")
	}
	return nil
}
