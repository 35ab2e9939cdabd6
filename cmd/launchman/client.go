package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIClient talks to a running launchman daemon over its HTTP API.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates an API client with sane defaults.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8832/api"
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) url(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// decode reads the response, surfacing the daemon's error message on
// non-2xx statuses.
func decode(resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("daemon: %s", errResp.Error)
		}
		return fmt.Errorf("daemon: unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Get performs a GET request and decodes the JSON response into out.
func (c *APIClient) Get(path string, query url.Values, out any) error {
	resp, err := c.client.Get(c.url(path, query))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decode(resp, out)
}

// Post performs a POST request with an optional JSON body.
func (c *APIClient) Post(path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	resp, err := c.client.Post(c.url(path, query), "application/json", rd)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decode(resp, out)
}

// Do performs a request with an arbitrary method.
func (c *APIClient) Do(method, path string, query url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.url(path, query), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decode(resp, out)
}
