package mock

import (
	"sync"
	"time"
)

// RecordingStatter is used for testing. Safe for concurrent use since the
// step runner reports from multiple goroutines.
type RecordingStatter struct {
	mu      sync.Mutex
	Counts  map[string]int64
	Timings map[string]time.Duration
}

// Count implements Count.
func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
}

// Timing implements Timing.
func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Timings == nil {
		r.Timings = make(map[string]time.Duration)
	}
	r.Timings[name] += value
}

// Get returns the recorded count for name.
func (r *RecordingStatter) Get(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counts[name]
}

// Gauge implements Gauge.
func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Histogram implements Histogram.
func (r *RecordingStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set implements Set.
func (r *RecordingStatter) Set(name string, value string, rate float64, tags ...string) {}
