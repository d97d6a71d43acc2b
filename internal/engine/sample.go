package engine

import "sync"

const maxHistory = 15

// Sample is one point in a job's byte-count history: the millisecond
// timestamp it was taken and the cumulative bytes downloaded at that
// moment.
type Sample struct {
	AtMillis int64
	Bytes    uint64
}

// SampleRing is a capped ring buffer of Samples. Only the oldest and
// newest entries matter for speed: everything in between exists so a
// consumer can render a sparkline, but Speed() only ever looks at the two
// ends.
type SampleRing struct {
	mu      sync.Mutex
	samples []Sample
}

// Push appends a sample, evicting the oldest entry once the ring is full.
func (r *SampleRing) Push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	if len(r.samples) > maxHistory {
		r.samples = r.samples[len(r.samples)-maxHistory:]
	}
}

// Snapshot returns a copy of the current history, oldest first.
func (r *SampleRing) Snapshot() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Speed returns the bytes/sec implied by the oldest and newest samples in
// the ring. With fewer than two samples, or a non-positive elapsed
// window, it returns 0 rather than dividing by zero or extrapolating.
func (r *SampleRing) Speed() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return speedFromSamples(r.samples)
}

func speedFromSamples(samples []Sample) float64 {
	if len(samples) < 2 {
		return 0
	}
	first := samples[0]
	last := samples[len(samples)-1]
	elapsedSecs := float64(last.AtMillis-first.AtMillis) / 1000.0
	if elapsedSecs <= 0 {
		return 0
	}
	deltaBytes := float64(last.Bytes - first.Bytes)
	return deltaBytes / elapsedSecs
}
