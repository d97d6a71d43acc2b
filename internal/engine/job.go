package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleKind names the states a Job moves through. A Job can return to
// Queued after leaving it: the Manager requeues jobs it demotes when the
// concurrency limit is lowered, and Resume requeues jobs that are not
// already running or completed.
type LifecycleKind int

const (
	Queued LifecycleKind = iota
	Running
	Paused
	Completed
	Cancelled
	Error
)

func (k LifecycleKind) String() string {
	switch k {
	case Queued:
		return "Queued"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// LifecycleState is the tagged state of a Job. Message is only meaningful
// when Kind == Error.
type LifecycleState struct {
	Kind    LifecycleKind
	Message string
}

func (s LifecycleState) String() string {
	if s.Kind == Error {
		return "Error: " + s.Message
	}
	return s.Kind.String()
}

// LifecycleEvent is what a worker reports back to the Manager's event
// intake when it reaches a terminal state. The channel carrying these is
// bounded (capacity 64, see Manager) so a stalled consumer cannot leave
// workers blocked mid-transition indefinitely.
type LifecycleEvent struct {
	ID      JobID
	Kind    LifecycleKind // Completed, Cancelled, or Error
	Message string        // set when Kind == Error
}

// flags holds the small set of cross-goroutine control signals a worker's
// fetchers watch on every chunk: whether a pause has been requested, and
// whether the whole job has been cancelled. Resume is a broadcast
// condition variable rather than a channel because any number of parked
// fetchers must wake together.
type flags struct {
	paused    atomic.Bool
	cancelled atomic.Bool
	// started marks that Start() has actually entered its fetch
	// pipeline at least once, distinguishing "paused before ever
	// running" (Resume must kick Start off for the first time) from
	// "paused mid-fetch" (Resume only needs to wake parked fetchers).
	started atomic.Bool

	// speedLimit is this job's current share of the fleet-wide speed
	// cap, in bytes/sec, as last computed by the bandwidth allocator.
	// Zero means unlimited.
	speedLimit atomic.Uint64

	resumeMu   sync.Mutex
	resumeCond *sync.Cond
}

func newFlags() *flags {
	f := &flags{}
	f.resumeCond = sync.NewCond(&f.resumeMu)
	return f
}

func (f *flags) pause() {
	f.paused.Store(true)
}

func (f *flags) resume() {
	f.paused.Store(false)
	f.resumeMu.Lock()
	f.resumeCond.Broadcast()
	f.resumeMu.Unlock()
}

func (f *flags) cancel() {
	f.cancelled.Store(true)
	// Wake anyone parked waiting for resume so they can observe the
	// cancellation and exit instead of blocking forever.
	f.resumeMu.Lock()
	f.resumeCond.Broadcast()
	f.resumeMu.Unlock()
}

// awaitResume blocks the calling fetcher while the job is paused and not
// cancelled. It returns immediately if neither condition holds.
func (f *flags) awaitResume() {
	f.resumeMu.Lock()
	for f.paused.Load() && !f.cancelled.Load() {
		f.resumeCond.Wait()
	}
	f.resumeMu.Unlock()
}

func (f *flags) isCancelled() bool { return f.cancelled.Load() }
func (f *flags) isPaused() bool    { return f.paused.Load() }

// Job is the cold metadata plus live counters for one download. The
// counters (downloaded, history) are safe to read from any goroutine
// without taking the metadata mutex, so a status query never blocks a
// fetcher mid-write.
type Job struct {
	ID      JobID
	URL     string
	Dest    string
	Threads int

	mu         sync.Mutex
	totalSize  int64 // -1 when unknown
	state      LifecycleState
	rangeCap   bool
	isManifest bool

	downloaded atomic.Int64
	history    SampleRing

	flags *flags

	// dual-stream orchestration, non-zero only for ytdl jobs
	videoSub *Job
	audioSub *Job
}

func newJob(id JobID, url, dest string, threads int) *Job {
	j := &Job{
		ID:      id,
		URL:     url,
		Dest:    dest,
		Threads: threads,
		flags:   newFlags(),
	}
	j.totalSize = -1
	j.state = LifecycleState{Kind: Queued}
	return j
}

func (j *Job) setState(s LifecycleState) {
	j.mu.Lock()
	j.state = s
	j.mu.Unlock()
}

func (j *Job) State() LifecycleState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

func (j *Job) setProbe(totalSize int64, rangeCap bool, isManifest bool) {
	j.mu.Lock()
	j.totalSize = totalSize
	j.rangeCap = rangeCap
	j.isManifest = isManifest
	j.mu.Unlock()
}

func (j *Job) TotalSize() (int64, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.totalSize < 0 {
		return 0, false
	}
	return j.totalSize, true
}

func (j *Job) Downloaded() int64 { return j.downloaded.Load() }

func (j *Job) addDownloaded(n int64) {
	j.downloaded.Add(n)
}

// Speed reports the current bytes/sec estimate from the job's sample
// history.
func (j *Job) Speed() float64 {
	return j.history.Speed()
}

func (j *Job) sample(nowMillis int64) {
	j.history.Push(Sample{AtMillis: nowMillis, Bytes: uint64(j.downloaded.Load())})
}

// throttle reactively sleeps when the job's recent speed exceeds its
// currently assigned share. There is no token bucket here: the decision
// is made fresh after every chunk from the live EMA-free speed estimate,
// so short bursts above the share are possible but the job is steered
// back down within a tick or two — an explicit tradeoff favoring
// simplicity over smoothness for a user-facing cap.
func (j *Job) throttle() {
	limit := j.flags.speedLimit.Load()
	if limit == 0 {
		return
	}
	current := j.Speed()
	if current <= float64(limit) {
		return
	}
	overshoot := current / float64(limit)
	sleep := time.Duration(float64(100*time.Millisecond) * (overshoot - 1))
	if sleep <= 0 {
		return
	}
	if sleep > time.Second {
		sleep = time.Second
	}
	time.Sleep(sleep)
}
