// Package health polls the backend's health endpoint and classifies the
// result into the three-level status that drives the capacity policy.
package health

import (
	"time"
)

// Status is the coarse backend health classification.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
)

// Snapshot is the client's view of backend health. It is derived from the
// raw fields on every poll and replaces the previous snapshot wholesale;
// there is no merging.
type Snapshot struct {
	CPUUsage          float64 // 0-100
	MemoryUsage       float64 // 0-100
	ActiveConnections int     // >= 0
	AnomalyScore      float64 // 0.0-1.0
	Status            Status
	Timestamp         time.Time // When this snapshot was taken
}

// wireSnapshot is the over-the-wire shape of GET /health/state. All fields
// are optional; absent numerics default to zero.
type wireSnapshot struct {
	CPUUsage          float64 `json:"cpu_usage"`
	MemoryUsage       float64 `json:"memory_usage"`
	ActiveConnections int     `json:"active_connections"`
	AnomalyScore      float64 `json:"anomaly_score"`
}

// Classify maps raw health metrics to a status. Evaluated in priority
// order; the first match wins.
func Classify(cpu, mem, anomaly float64) Status {
	switch {
	case cpu > 90 || mem > 90 || anomaly > 0.8:
		return StatusCritical
	case cpu > 70 || mem > 70 || anomaly > 0.5:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// newSnapshot builds a classified snapshot from wire fields.
func newSnapshot(w wireSnapshot, now time.Time) Snapshot {
	return Snapshot{
		CPUUsage:          w.CPUUsage,
		MemoryUsage:       w.MemoryUsage,
		ActiveConnections: w.ActiveConnections,
		AnomalyScore:      w.AnomalyScore,
		Status:            Classify(w.CPUUsage, w.MemoryUsage, w.AnomalyScore),
		Timestamp:         now,
	}
}

// degradedFallback is the snapshot assumed when health checking itself
// fails. Conservative placeholders make the scheduler fail toward caution
// instead of running unconstrained on stale data.
func degradedFallback(now time.Time) Snapshot {
	return Snapshot{
		CPUUsage:          80,
		MemoryUsage:       80,
		ActiveConnections: 100,
		AnomalyScore:      0.7,
		Status:            StatusDegraded,
		Timestamp:         now,
	}
}
