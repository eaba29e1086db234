package health

import (
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		cpu      float64
		mem      float64
		anomaly  float64
		expected Status
	}{
		{"all nominal", 10, 20, 0.1, StatusHealthy},
		{"at degraded boundary", 70, 70, 0.5, StatusHealthy},
		{"cpu degraded", 71, 10, 0, StatusDegraded},
		{"memory degraded", 10, 75, 0, StatusDegraded},
		{"anomaly degraded", 10, 10, 0.6, StatusDegraded},
		{"at critical boundary", 90, 90, 0.8, StatusDegraded},
		{"cpu critical", 95, 10, 0, StatusCritical},
		{"memory critical", 10, 91, 0, StatusCritical},
		{"anomaly critical", 10, 10, 0.9, StatusCritical},
		{"critical wins over degraded", 95, 75, 0.6, StatusCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.cpu, tt.mem, tt.anomaly); got != tt.expected {
				t.Errorf("Classify(%v, %v, %v) = %s, want %s",
					tt.cpu, tt.mem, tt.anomaly, got, tt.expected)
			}
		})
	}
}

func TestNewSnapshotClassifies(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := newSnapshot(wireSnapshot{
		CPUUsage:          95,
		MemoryUsage:       40,
		ActiveConnections: 12,
		AnomalyScore:      0.2,
	}, now)

	if snap.Status != StatusCritical {
		t.Errorf("Status = %s, want critical", snap.Status)
	}
	if snap.ActiveConnections != 12 {
		t.Errorf("ActiveConnections = %d, want 12", snap.ActiveConnections)
	}
	if !snap.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", snap.Timestamp, now)
	}
}

func TestDegradedFallback(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := degradedFallback(now)

	if snap.Status != StatusDegraded {
		t.Errorf("Fallback status = %s, want degraded", snap.Status)
	}
	if snap.CPUUsage != 80 || snap.MemoryUsage != 80 || snap.AnomalyScore != 0.7 {
		t.Errorf("Fallback metrics = %+v, want conservative placeholders", snap)
	}
}
