package server

import "sync/atomic"

// Metrics counts server activity. The zero value is ready to use.
type Metrics struct {
	runs        atomic.Uint64
	errors      atomic.Uint64
	rateLimited atomic.Uint64
	sockets     atomic.Int64
}

// MetricsSnapshot is the JSON body of GET /metrics.
type MetricsSnapshot struct {
	TotalRequests  uint64 `json:"totalRequests"`
	TotalErrors    uint64 `json:"totalErrors"`
	RateLimited    uint64 `json:"rateLimited"`
	OpenWorkspaces int64  `json:"openWorkspaces"`
}

func (m *Metrics) incRuns()        { m.runs.Add(1) }
func (m *Metrics) incErrors()      { m.errors.Add(1) }
func (m *Metrics) incRateLimited() { m.rateLimited.Add(1) }
func (m *Metrics) socketOpened()   { m.sockets.Add(1) }
func (m *Metrics) socketClosed()   { m.sockets.Add(-1) }

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:  m.runs.Load(),
		TotalErrors:    m.errors.Load(),
		RateLimited:    m.rateLimited.Load(),
		OpenWorkspaces: m.sockets.Load(),
	}
}
