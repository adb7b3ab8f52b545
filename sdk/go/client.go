package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"rewardkit/core"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the rewards HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// SubmitEvent posts one activity event. Pass an IdempotencyKey whenever the
// caller may retry; without one the server synthesizes a key from the
// event's identity, which collapses only same-second retries.
func (c *Client) SubmitEvent(ctx context.Context, req EventSubmission) (EventResult, error) {
	if strings.TrimSpace(req.EventType) == "" {
		return EventResult{}, ErrEmptyEventType
	}
	body, err := json.Marshal(req)
	if err != nil {
		return EventResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return EventResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.applyHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return EventResult{}, err
	}
	defer resp.Body.Close()

	var result EventResult
	if err := decodeJSON(resp, &result); err != nil {
		return EventResult{}, err
	}
	return result, nil
}

// GetProfile fetches the authenticated user's profile and earned badges.
func (c *Client) GetProfile(ctx context.Context) (ProfileResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/profile", nil)
	if err != nil {
		return ProfileResult{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProfileResult{}, err
	}
	defer resp.Body.Close()

	var result ProfileResult
	if err := decodeJSON(resp, &result); err != nil {
		return ProfileResult{}, err
	}
	return result, nil
}

// Quests fetches the authenticated user's quest progress.
func (c *Client) Quests(ctx context.Context) ([]QuestStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quests", nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body struct {
		Quests []QuestStatus `json:"quests"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}
	return body.Quests, nil
}

// Leaderboard fetches the top n entries plus the caller's own rank.
func (c *Client) Leaderboard(ctx context.Context, n int) (LeaderboardResult, error) {
	u := c.baseURL + "/leaderboard"
	if n > 0 {
		u += "?n=" + strconv.Itoa(n)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return LeaderboardResult{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LeaderboardResult{}, err
	}
	defer resp.Body.Close()

	var result LeaderboardResult
	if err := decodeJSON(resp, &result); err != nil {
		return LeaderboardResult{}, err
	}
	return result, nil
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return HealthStatus{}, err
	}
	defer resp.Body.Close()

	var hs HealthStatus
	if err := decodeJSON(resp, &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

// StreamEvents connects to the WebSocket stream and emits core.Event values.
// A non-empty user scopes the stream to that user's events. The returned
// channel closes when ctx is done or the connection drops.
func (c *Client) StreamEvents(ctx context.Context, user string) (<-chan core.Event, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	wsURL := c.wsURL
	if user != "" {
		wsURL += "?user=" + url.QueryEscape(user)
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan core.Event, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				var evt core.Event
				if err := conn.ReadJSON(&evt); err != nil {
					return
				}
				select {
				case out <- evt:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
