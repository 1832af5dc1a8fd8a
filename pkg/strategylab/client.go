// Package strategylab is a Go client for the strategylab results API.
package strategylab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when the server has no result with the given ID.
var ErrNotFound = errors.New("result not found")

// Summary is one entry of the result listing.
type Summary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Symbols        []string  `json:"symbols"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	CreatedAt      time.Time `json:"created_at"`
	TotalReturnPct float64   `json:"total_return_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TotalTrades    int       `json:"total_trades"`
}

// Client provides a Go SDK for interacting with the strategylab server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new strategylab API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListResults retrieves result summaries, newest first. An empty name lists
// every result; a zero limit returns all of them.
func (c *Client) ListResults(ctx context.Context, name string, limit int) ([]Summary, error) {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/v1/results"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var body struct {
		Results []Summary `json:"results"`
	}
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, fmt.Errorf("ListResults: %w", err)
	}
	return body.Results, nil
}

// GetResult retrieves the full JSON document of one result.
func (c *Client) GetResult(ctx context.Context, id string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/api/v1/results/"+url.PathEscape(id), &raw); err != nil {
		return nil, fmt.Errorf("GetResult: %w", err)
	}
	return raw, nil
}

// TearSheet retrieves the rendered text tear sheet of one result.
func (c *Client) TearSheet(ctx context.Context, id string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/results/"+url.PathEscape(id)+"/tearsheet?format=text")
	if err != nil {
		return "", fmt.Errorf("TearSheet: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("TearSheet: %w", err)
	}
	return string(data), nil
}

// DeleteResult removes one result.
func (c *Client) DeleteResult(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/v1/results/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("DeleteResult: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(v)
}

// do sends the request and converts non-2xx responses into errors.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&apiErr)
	return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Error)
}
