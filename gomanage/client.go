// Package gomanage implements erpcache.BackendClient over the GoManage ERP
// HTTP API. The resolver depends only on the interface; this client is the
// production collaborator behind it.
package gomanage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/erpcache"
)

// HTTPError captures unexpected status codes and response bodies.
type HTTPError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, string(e.Body))
}

type Config struct {
	// BaseURL is the API root, e.g. "https://erp.example.com/gomanage/".
	BaseURL  string
	Username string
	Password string

	// HTTPClient overrides the transport; nil gets a 10s-timeout default.
	HTTPClient *http.Client
}

type Client struct {
	base     *url.URL
	hc       *http.Client
	username string
	password string

	mu    sync.Mutex
	token string // session bearer token; empty until first login
}

var _ erpcache.BackendClient = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gomanage: base URL is required")
	}
	raw := cfg.BaseURL
	if !strings.HasSuffix(raw, "/") {
		raw += "/" // relative endpoint resolution needs a directory base
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("gomanage: invalid base URL: %w", err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base:     base,
		hc:       hc,
		username: cfg.Username,
		password: cfg.Password,
	}, nil
}

// FetchResourceList lists records of a class. The class name doubles as the
// endpoint path ("customers", "products", "invoices"). No data decodes to an
// empty slice, never nil.
func (c *Client) FetchResourceList(ctx context.Context, class erpcache.Class, limit int, extra map[string]string) ([]erpcache.Record, error) {
	params := map[string]string{"limit": strconv.Itoa(limit)}
	for k, v := range extra {
		params[k] = v
	}

	urlStr, err := c.buildURL(class.Name, params)
	if err != nil {
		return nil, err
	}
	data, err := c.doRequest(ctx, http.MethodGet, urlStr, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}

	recs := []erpcache.Record{}
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("gomanage: decode %s list: %w", class.Name, err)
	}
	return recs, nil
}

// Create posts a new record. GoManage echoes the stored record on success;
// an empty 2xx body is treated as an echo-less success and the payload is
// returned as-is.
func (c *Client) Create(ctx context.Context, class erpcache.Class, payload erpcache.Record) (erpcache.Record, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("gomanage: encode %s create: %w", class.Name, err)
	}

	urlStr, err := c.buildURL(class.Name, nil)
	if err != nil {
		return nil, err
	}
	data, err := c.doRequest(ctx, http.MethodPost, urlStr, bytes.NewReader(body), http.StatusOK, http.StatusCreated)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return payload, nil
	}
	var rec erpcache.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("gomanage: decode %s create response: %w", class.Name, err)
	}
	return rec, nil
}

// doRequest performs one authenticated request, logging in on demand and
// retrying exactly once with a fresh session when the token is rejected.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body io.Reader, expectedStatus ...int) ([]byte, error) {
	// read the entire body so the 401 retry can resend it
	var bodyBytes []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("gomanage: read request body: %w", err)
		}
		bodyBytes = b
	}

	token, err := c.bearer(ctx)
	if err != nil {
		return nil, err
	}

	data, status, err := c.executeRequest(ctx, method, urlStr, token, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		c.dropToken(token)
		if token, err = c.bearer(ctx); err != nil {
			return nil, err
		}
		data, status, err = c.executeRequest(ctx, method, urlStr, token, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
	}

	if !statusMatches(status, expectedStatus) {
		return nil, &HTTPError{StatusCode: status, Body: data}
	}
	return data, nil
}

func (c *Client) executeRequest(ctx context.Context, method, urlStr, token string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("gomanage: execute request: %w", err)
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, resp.StatusCode, fmt.Errorf("gomanage: read response body: %w", readErr)
	}
	return data, resp.StatusCode, nil
}

// bearer returns the current session token, logging in if there is none.
func (c *Client) bearer(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	creds, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}
	urlStr, err := c.buildURL("auth/login", nil)
	if err != nil {
		return "", err
	}
	data, status, err := c.executeRequest(ctx, http.MethodPost, urlStr, "", bytes.NewReader(creds))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &HTTPError{StatusCode: status, Body: data}
	}

	var session struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return "", fmt.Errorf("gomanage: decode login response: %w", err)
	}
	if session.Token == "" {
		return "", fmt.Errorf("gomanage: login returned no token")
	}
	c.token = session.Token
	return c.token, nil
}

// dropToken forgets a rejected token, unless another request already
// replaced it.
func (c *Client) dropToken(rejected string) {
	c.mu.Lock()
	if c.token == rejected {
		c.token = ""
	}
	c.mu.Unlock()
}

// buildURL merges base + endpoint + params.
func (c *Client) buildURL(endpoint string, params map[string]string) (string, error) {
	path, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("gomanage: invalid endpoint: %w", err)
	}
	fullURL := c.base.ResolveReference(path)
	q := fullURL.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	fullURL.RawQuery = q.Encode()
	return fullURL.String(), nil
}

func statusMatches(statusCode int, expected []int) bool {
	for _, s := range expected {
		if statusCode == s {
			return true
		}
	}
	return false
}
