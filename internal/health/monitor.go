package health

import (
	"sync"

	"github.com/brahim-guaali/error-boundary/internal/core/domain"
)

// Boundary is the view of a controller the monitor needs.
type Boundary interface {
	Name() string
	HasError() bool
	CurrentError() *domain.Record
	AttemptCount() int
	Generation() uint64
	RecoveryInProgress() bool
}

// Monitor aggregates health status from all registered boundaries.
type Monitor struct {
	mu         sync.RWMutex
	boundaries []Boundary
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Register adds a boundary to the monitor.
func (m *Monitor) Register(b Boundary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundaries = append(m.boundaries, b)
}

// CheckHealth snapshots every registered boundary.
func (m *Monitor) CheckHealth() map[string]BoundaryHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	report := make(map[string]BoundaryHealth, len(m.boundaries))
	for _, b := range m.boundaries {
		h := BoundaryHealth{
			Name:         b.Name(),
			Status:       StatusHealthy,
			AttemptCount: b.AttemptCount(),
			Generation:   b.Generation(),
			Recovering:   b.RecoveryInProgress(),
		}

		if rec := b.CurrentError(); rec != nil {
			h.Faulted = true
			h.Fault = rec.Message()
			h.Severity = string(rec.Severity)
			h.Classification = string(rec.Classification)
			h.Status = StatusDegraded
			if rec.Severity.AtLeast(domain.SeverityHigh) {
				h.Status = StatusCritical
			}
		}

		report[b.Name()] = h
	}
	return report
}

// Overall collapses a report into a single status, worst case wins.
func Overall(report map[string]BoundaryHealth) SystemStatus {
	status := StatusHealthy
	for _, h := range report {
		if h.Status == StatusCritical {
			return StatusCritical
		}
		if h.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
