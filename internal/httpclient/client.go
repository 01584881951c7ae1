// Package httpclient provides the bounded-timeout HTTP transport shared
// by both Backend Clients: one connection-pooled *http.Client per
// backend, plus the named-timeout policy from spec §4.2/§6.
package httpclient

import (
	"net/http"
	"time"
)

// TimeoutCategory is one of the four named timeout buckets every
// Backend Client endpoint is classified into at design time.
type TimeoutCategory string

const (
	// Short is used for lightweight, latency-sensitive calls.
	Short TimeoutCategory = "SHORT"
	// Default is used for typical request/response calls.
	Default TimeoutCategory = "DEFAULT"
	// Media is used for calls that move media payloads.
	Media TimeoutCategory = "MEDIA"
	// Health is used only by the Health Monitor's probe.
	Health TimeoutCategory = "HEALTH"
)

// Policy resolves a TimeoutCategory to a concrete duration.
type Policy struct {
	ShortTimeout   time.Duration
	DefaultTimeout time.Duration
	MediaTimeout   time.Duration
	HealthTimeout  time.Duration
}

// Timeout returns the duration configured for category c.
func (p Policy) Timeout(c TimeoutCategory) time.Duration {
	switch c {
	case Short:
		return p.ShortTimeout
	case Media:
		return p.MediaTimeout
	case Health:
		return p.HealthTimeout
	default:
		return p.DefaultTimeout
	}
}

// New builds a pooled *http.Client for one backend base URL. The
// client has no Timeout set directly — callers derive a per-request
// context deadline from Policy.Timeout so that each call can use its
// own category, matching spec §4.2 ("bounded HTTP timeout drawn from a
// named-timeout policy").
func New() *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{Transport: transport}
}
