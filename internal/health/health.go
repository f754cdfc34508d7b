// Package health provides boundary health monitoring and status
// reporting over HTTP.
package health

// SystemStatus represents the overall health state of the system or a
// single boundary.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// BoundaryHealth contains the health snapshot of a single boundary.
type BoundaryHealth struct {
	Name           string       `json:"name"`
	Status         SystemStatus `json:"status"`
	Faulted        bool         `json:"faulted"`
	Fault          string       `json:"fault,omitempty"`
	Severity       string       `json:"severity,omitempty"`
	Classification string       `json:"classification,omitempty"`
	AttemptCount   int          `json:"attempt_count"`
	Generation     uint64       `json:"generation"`
	Recovering     bool         `json:"recovering"`
}
