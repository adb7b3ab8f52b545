package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	wsadapter "rewardkit/adapters/websocket"
	"rewardkit/auth"
	"rewardkit/core"
	"rewardkit/engine"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

// NewMux builds an http.Handler exposing the rewards REST API and WebSocket stream.
// Routes:
//   - POST {prefix}/events
//   - GET  {prefix}/profile
//   - GET  {prefix}/quests
//   - GET  {prefix}/leaderboard?n=10
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
//
// All routes except /healthz and /ws require a resolvable bearer token; the
// resolved identity is the only user the request can act on.
func NewMux(svc *engine.IngestService, hub *realtime.Hub, provider auth.Provider, board leaderboard.Board, opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), func(w http.ResponseWriter, r *http.Request) {
		healthCheck(w, r, svc)
	})

	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/events"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
			return
		}
		user, ok := authenticate(w, r, provider)
		if !ok {
			return
		}
		var body eventRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON", nil)
			return
		}
		if body.EventType == "" {
			writeError(w, http.StatusBadRequest, "missing_event_type", "event_type is required", nil)
			return
		}
		res, err := svc.Submit(r.Context(), engine.SubmitRequest{
			UserID:         user,
			Type:           core.ActivityType(body.EventType),
			IdempotencyKey: body.IdempotencyKey,
			DeviceID:       body.DeviceID,
			Lat:            body.Lat,
			Lng:            body.Lng,
			Metadata:       body.Metadata,
		})
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, eventResponse{
			AwardedPoints: res.AwardedPoints,
			Duplicate:     res.Duplicate,
			Profile:       res.Profile,
			NewBadges:     res.NewBadges,
		})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/profile"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
			return
		}
		user, ok := authenticate(w, r, provider)
		if !ok {
			return
		}
		profile, found, err := svc.GetProfile(r.Context(), user)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		if !found {
			// A user with no accepted events yet reads as a fresh profile.
			profile = core.Profile{UserID: user}
		}
		badges, err := svc.ListBadges(r.Context(), user)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, profileResponse{Profile: profile, Badges: badges})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/quests"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
			return
		}
		user, ok := authenticate(w, r, provider)
		if !ok {
			return
		}
		statuses, err := svc.QuestStatuses(r.Context(), user)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, map[string]any{"quests": statuses})
	})

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
			return
		}
		if board == nil {
			writeError(w, http.StatusNotFound, "not_found", "leaderboard not enabled", nil)
			return
		}
		user, ok := authenticate(w, r, provider)
		if !ok {
			return
		}
		n := 10
		if raw := r.URL.Query().Get("n"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 || v > 100 {
				writeError(w, http.StatusBadRequest, "invalid_n", "n must be an integer in [1,100]", nil)
				return
			}
			n = v
		}
		resp := leaderboardResponse{Entries: board.TopN(n)}
		if rank, ok := board.Rank(user); ok {
			entry, _ := board.Get(user)
			resp.Me = &rankedEntry{Entry: entry, Rank: rank}
		}
		writeJSON(w, resp)
	})

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

type eventRequest struct {
	EventType      string         `json:"event_type"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	DeviceID       string         `json:"device_id,omitempty"`
	Lat            *float64       `json:"lat,omitempty"`
	Lng            *float64       `json:"lng,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type eventResponse struct {
	AwardedPoints int64            `json:"awarded_points"`
	Duplicate     bool             `json:"duplicate"`
	Profile       core.Profile     `json:"profile"`
	NewBadges     []core.BadgeCode `json:"new_badges,omitempty"`
}

type profileResponse struct {
	Profile core.Profile      `json:"profile"`
	Badges  []core.BadgeGrant `json:"badges,omitempty"`
}

type rankedEntry struct {
	leaderboard.Entry
	Rank int `json:"rank"`
}

type leaderboardResponse struct {
	Entries []leaderboard.Entry `json:"entries"`
	Me      *rankedEntry        `json:"me,omitempty"`
}

// authenticate resolves the bearer token to a user and writes a 401 on
// failure. The second return reports whether the handler may proceed.
func authenticate(w http.ResponseWriter, r *http.Request, provider auth.Provider) (core.UserID, bool) {
	if provider == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "no identity provider configured", nil)
		return "", false
	}
	user, err := provider.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credentials", nil)
		return "", false
	}
	return user, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	// Query fallback for clients that cannot set headers (e.g. EventSource).
	return r.URL.Query().Get("token")
}

// writeEngineError maps engine error kinds to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrUnknownEventType):
		writeError(w, http.StatusBadRequest, "unknown_event_type", err.Error(), nil)
	case errors.Is(err, core.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error(), nil)
	case errors.Is(err, core.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error(), nil)
	case errors.Is(err, core.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "concurrent update, retry with the same idempotency key", nil)
	case errors.Is(err, core.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage temporarily unavailable, retry with the same idempotency key", nil)
	default:
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
	}
}

// Helpers

// healthCheck verifies the service is working properly
func healthCheck(w http.ResponseWriter, r *http.Request, svc *engine.IngestService) {
	ctx := r.Context()

	// Probe storage with a read on a reserved user; safe and side-effect free.
	_, _, err := svc.GetProfile(ctx, core.UserID("healthcheck_probe"))

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}

	// Headers must be set before WriteHeader flushes them.
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey buckets by bearer token when present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
