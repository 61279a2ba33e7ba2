// Copyright 2026 The Clove Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"strings"
	"sync"
	"time"

	"github.com/clove-kernel/clove/lib/pattern"
)

// NetworkMode is the closed enumeration of NetworkMock modes (spec
// §4.10).
type NetworkMode string

const (
	NetworkModeMock        NetworkMode = "mock"
	NetworkModePassthrough NetworkMode = "passthrough"
	NetworkModeRecord      NetworkMode = "record"
)

// MockResponse is a configured or synthesized HTTP response (spec §3,
// grounded on world_engine.hpp's MockResponse).
type MockResponse struct {
	StatusCode int               `json:"status_code"`
	Body       string            `json:"body"`
	Headers    map[string]string `json:"headers,omitempty"`
	LatencyMs  uint32            `json:"latency_ms,omitempty"`
}

// RecordedExchange is one request/response pair captured while the
// NetworkMock runs in record mode (SPEC_FULL.md supplemented feature,
// grounded on world_engine.hpp's record()/get_recorded()).
type RecordedExchange struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	Body       string    `json:"body"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NetworkConfig configures a NetworkMock (spec §4.10).
type NetworkConfig struct {
	Mode            NetworkMode             `json:"mode"`
	MockResponses   map[string]MockResponse `json:"mock_responses"`
	DefaultResponse *MockResponse           `json:"default_response"`
	AllowedDomains  []string                `json:"allowed_domains"`
	FailUnmatched   bool                    `json:"fail_unmatched"`
}

// NetworkMock intercepts HTTP syscalls for a World (spec §4.10). Safe
// for concurrent use; owns exactly one lock.
type NetworkMock struct {
	mu sync.Mutex

	mode            NetworkMode
	mocks           map[string]MockResponse
	defaultResponse *MockResponse
	allowedDomains  []string
	failUnmatched   bool

	recorded []RecordedExchange

	requestsIntercepted   uint64
	requestsPassedThrough uint64
	requestsFailed        uint64
}

// NewNetworkMock creates a NetworkMock in passthrough mode.
func NewNetworkMock() *NetworkMock {
	return &NetworkMock{mode: NetworkModePassthrough, mocks: make(map[string]MockResponse)}
}

// Configure replaces the mock's configuration.
func (n *NetworkMock) Configure(cfg NetworkConfig) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.mode = cfg.Mode
	if n.mode == "" {
		n.mode = NetworkModePassthrough
	}
	n.mocks = make(map[string]MockResponse, len(cfg.MockResponses))
	for pat, resp := range cfg.MockResponses {
		n.mocks[pat] = resp
	}
	n.defaultResponse = cfg.DefaultResponse
	n.allowedDomains = cfg.AllowedDomains
	n.failUnmatched = cfg.FailUnmatched
}

// Enabled reports whether the mock is doing anything other than pure
// passthrough.
func (n *NetworkMock) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mode != NetworkModePassthrough
}

// ShouldIntercept reports whether url should be handled by the mock
// rather than a real network call.
func (n *NetworkMock) ShouldIntercept(url string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mode == NetworkModePassthrough {
		return false
	}
	if _, ok := n.mocks[url]; ok {
		return true
	}
	return pattern.MatchAny(patternKeys(n.mocks), url)
}

func patternKeys(m map[string]MockResponse) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// GetResponse resolves url/method to a response (spec §4.10):
// exact URL match, then pattern match, then — if not intercepted —
// consult allowed_domains; an unmatched request synthesizes a 503 if
// fail_unmatched, otherwise falls back to default_response or
// passthrough (ok=false).
func (n *NetworkMock) GetResponse(url, method string) (resp MockResponse, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.mode == NetworkModeRecord {
		// Recording mode always passes through; the caller records
		// the real response afterward via Record.
		n.requestsPassedThrough++
		return MockResponse{}, false
	}

	if exact, found := n.mocks[url]; found {
		n.requestsIntercepted++
		return exact, true
	}
	for pat, candidate := range n.mocks {
		if pattern.Match(pat, url) {
			n.requestsIntercepted++
			return candidate, true
		}
	}

	domain := extractDomain(url)
	if pattern.MatchAny(n.allowedDomains, domain) {
		n.requestsPassedThrough++
		return MockResponse{}, false
	}

	if n.failUnmatched {
		n.requestsFailed++
		return MockResponse{StatusCode: 503, Body: "Simulated network failure (unmatched)"}, true
	}

	if n.defaultResponse != nil {
		n.requestsIntercepted++
		return *n.defaultResponse, true
	}

	n.requestsPassedThrough++
	return MockResponse{}, false
}

func extractDomain(url string) string {
	rest := url
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	return rest
}

// AddMock registers or replaces a mock response for a URL pattern.
func (n *NetworkMock) AddMock(urlPattern string, resp MockResponse) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mocks[urlPattern] = resp
}

// RemoveMock removes a previously registered mock response.
func (n *NetworkMock) RemoveMock(urlPattern string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.mocks, urlPattern)
}

// Record appends a captured exchange while in record mode
// (SPEC_FULL.md supplemented feature). No-op outside record mode.
func (n *NetworkMock) Record(exchange RecordedExchange) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.mode != NetworkModeRecord {
		return
	}
	n.recorded = append(n.recorded, exchange)
}

// GetRecorded returns every exchange captured in record mode.
func (n *NetworkMock) GetRecorded() []RecordedExchange {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]RecordedExchange, len(n.recorded))
	copy(out, n.recorded)
	return out
}
