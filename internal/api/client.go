// internal/api/client.go
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coinhunt/roomengine/pkg/core"
	"github.com/coinhunt/roomengine/pkg/streaming"
)

// Client talks to a coin server's HTTP query surface.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new API client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Healthcheck checks if the coin server is reachable.
func (c *Client) Healthcheck() error {
	if err := c.get("/healthcheck", nil); err != nil {
		return fmt.Errorf("healthcheck: %w", err)
	}
	return nil
}

// Rooms lists every known room.
func (c *Client) Rooms() ([]string, error) {
	var body RoomsResponse
	if err := c.get("/rooms", &body); err != nil {
		return nil, err
	}
	return body.Rooms, nil
}

// Room fetches one room's summary.
func (c *Client) Room(room string) (core.RoomSummary, error) {
	var body core.RoomSummary
	err := c.get("/rooms/"+url.PathEscape(room), &body)
	return body, err
}

// CoinsAvailable returns how many coins a room has left.
func (c *Client) CoinsAvailable(room string) (int, error) {
	var body CoinsAvailableResponse
	if err := c.get("/coins/"+url.PathEscape(room), &body); err != nil {
		return 0, err
	}
	return body.CoinsAvailable, nil
}

// Nearby lists the coins of room within radius of (x, y), nearest first.
func (c *Client) Nearby(room string, x, y int, radius float64) ([]core.Coin, error) {
	q := url.Values{}
	q.Set("x", strconv.Itoa(x))
	q.Set("y", strconv.Itoa(y))
	q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))

	var body streaming.CoinsPayload
	if err := c.get("/coins/"+url.PathEscape(room)+"/nearby?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	return body.Coins, nil
}

// Generate replaces a room's coins with a fresh batch.
func (c *Client) Generate(cfg core.RoomConfig) (core.RoomSummary, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return core.RoomSummary{}, fmt.Errorf("marshal room config: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/rooms", bytes.NewReader(data))
	if err != nil {
		return core.RoomSummary{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)

	var body core.RoomSummary
	err = c.do(req, &body)
	return body, err
}
