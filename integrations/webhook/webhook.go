package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"rewardkit/core"
)

// Sink posts domain events to configured HTTP endpoints so downstream
// systems (payroll bonuses, CRM timelines) can react to awards. Delivery is
// synchronous and best-effort; wrap with the async bus mode if callers must
// not block on it.
type Sink struct {
	client    *http.Client
	endpoints []string
	secret    []byte
	types     map[core.EventType]struct{}
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSigningSecret enables an HMAC-SHA256 hex signature of the body in the
// X-Rewardkit-Signature header.
func WithSigningSecret(secret []byte) Option {
	return func(s *Sink) {
		if len(secret) > 0 {
			s.secret = append([]byte(nil), secret...)
		}
	}
}

// WithEventTypes restricts delivery to the given types. Default is all.
func WithEventTypes(types ...core.EventType) Option {
	return func(s *Sink) {
		if len(types) == 0 {
			return
		}
		s.types = make(map[core.EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints. Delivery failures are
// dropped: the store is the source of truth and consumers reconcile from it.
func (s *Sink) OnEvent(e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	if s.types != nil {
		if _, ok := s.types[e.Type]; !ok {
			return
		}
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	var signature string
	if len(s.secret) > 0 {
		mac := hmac.New(sha256.New, s.secret)
		mac.Write(body)
		signature = hex.EncodeToString(mac.Sum(nil))
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set("X-Rewardkit-Signature", signature)
		}
		if resp, err := s.client.Do(req); err == nil {
			_ = resp.Body.Close()
		}
	}
}
