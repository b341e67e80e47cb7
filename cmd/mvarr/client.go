package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps HTTP calls to the mvarr server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new mvarr API client.
func NewClient(serverURL string) *Client {
	return &Client{
		baseURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

func (c *Client) post(path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	resp, err := c.httpClient.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

// API response types (mirror server types)

type StatusResponse struct {
	Running            bool            `json:"running"`
	Degraded           bool            `json:"degraded"`
	DegradedReason     string          `json:"degraded_reason,omitempty"`
	NextDiscovery      *time.Time      `json:"next_discovery,omitempty"`
	NextSweep          *time.Time      `json:"next_sweep,omitempty"`
	LastDiscovery      json.RawMessage `json:"last_discovery,omitempty"`
	LastSweep          json.RawMessage `json:"last_sweep,omitempty"`
	CoalescedDiscovery int64           `json:"coalesced_discovery"`
	CoalescedSweeps    int64           `json:"coalesced_sweeps"`
	QueueDepth         int64           `json:"queue_depth"`
}

type TriggerResponse struct {
	Triggered bool `json:"triggered"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type ListEventsResponse struct {
	Items []EventResponse `json:"items"`
}

// Status fetches daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	var st StatusResponse
	if err := c.get("/api/v1/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// TriggerDiscovery requests a discovery run. artistID 0 means all
// eligible artists.
func (c *Client) TriggerDiscovery(artistID int64) (*TriggerResponse, error) {
	var body any
	if artistID > 0 {
		body = map[string]int64{"artist_id": artistID}
	}
	var tr TriggerResponse
	if err := c.post("/api/v1/discovery/trigger", body, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// TriggerSweep requests a download sweep.
func (c *Client) TriggerSweep() (*TriggerResponse, error) {
	var tr TriggerResponse
	if err := c.post("/api/v1/downloads/trigger", nil, &tr); err != nil {
		return nil, err
	}
	return &tr, nil
}

// Events fetches the most recent events.
func (c *Client) Events(limit int) (*ListEventsResponse, error) {
	var lr ListEventsResponse
	if err := c.get(fmt.Sprintf("/api/v1/events?limit=%d", limit), &lr); err != nil {
		return nil, err
	}
	return &lr, nil
}
