package casedesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xavierca1/immigration-crm/internal/entity"
)

var ErrNotConfigured = errors.New("casedesk: base URL not configured")

// Client talks to the Client/Case service that owns client accounts and immigration cases.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateClient opens a client account and its case. The service deduplicates on
// source_prospect_id, which is also sent as the Idempotency-Key header.
func (c *Client) CreateClient(ctx context.Context, input CreateClientInput) (*entity.ClientAccount, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	jsonBody, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("casedesk: marshal client: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/clients", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Idempotency-Key", input.SourceProspectID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("casedesk: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("casedesk: create client (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("casedesk: create client (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response createClientResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("casedesk: decode response: %w", err)
	}
	if response.ClientID == "" || response.CaseID == "" {
		return nil, fmt.Errorf("casedesk: response missing client_id or case_id")
	}

	return &entity.ClientAccount{ClientID: response.ClientID, CaseID: response.CaseID}, nil
}

// Ping reports whether the service answers; used by the health check.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("casedesk: health status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
