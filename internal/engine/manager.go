package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// eventChannelCapacity bounds the lifecycle event intake so a slow
// consumer never makes a worker block mid state-transition; workers drop
// and log instead (see Worker.emit).
const eventChannelCapacity = 64

// Manager owns the whole fleet: every known Job, the admission loop that
// decides which Queued jobs get to run, and the bandwidth allocator that
// redistributes the configured speed cap across active workers.
type Manager struct {
	mu       sync.Mutex
	settings Settings
	jobs     map[JobID]*Job
	workers  map[JobID]*Worker
	active   map[JobID]struct{}
	// activeOrder tracks admission order of the active set, oldest first,
	// so a lowered ConcurrencyLimit demotes the earliest admitted jobs
	// first and leaves the most recently admitted ones running.
	activeOrder []JobID

	facade *httpFacade
	mux    Muxer
	log    zerolog.Logger

	events  chan LifecycleEvent
	history HistoryRecorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// HistoryRecorder persists terminal job outcomes. internal/history.Store
// satisfies this; it is expressed as an interface here, rather than
// imported directly, because history imports engine for JobID and
// LifecycleKind.
type HistoryRecorder interface {
	Record(id JobID, url, dest string, kind LifecycleKind, totalSize int64, completedAt time.Time) error
}

// AttachHistory wires a HistoryRecorder that every subsequent terminal
// job event gets appended to. Submissions made before this call are not
// retroactively recorded.
func (m *Manager) AttachHistory(h HistoryRecorder) {
	m.mu.Lock()
	m.history = h
	m.mu.Unlock()
}

// NewManager constructs a Manager with the given starting settings. The
// returned Manager owns a background goroutine draining lifecycle events;
// call Shutdown to stop it.
func NewManager(settings Settings, log zerolog.Logger) (*Manager, error) {
	facade, err := newHTTPFacade("", settings.DownloadTimeout)
	if err != nil {
		return nil, fmt.Errorf("build http facade: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		settings: settings,
		jobs:     make(map[JobID]*Job),
		workers:  make(map[JobID]*Worker),
		active:   make(map[JobID]struct{}),
		facade:   facade,
		mux:      NewExecMuxer(""),
		log:      log,
		events:   make(chan LifecycleEvent, eventChannelCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}

	m.wg.Add(1)
	go m.eventLoop()

	m.wg.Add(1)
	go m.bandwidthLoop()

	return m, nil
}

func (m *Manager) eventLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev LifecycleEvent) {
	m.mu.Lock()
	m.removeActive(ev.ID)
	job := m.jobs[ev.ID]
	recorder := m.history
	m.mu.Unlock()
	m.log.Info().Stringer("job", ev.ID).Str("kind", ev.Kind.String()).Msg("job reached terminal state")

	if recorder != nil && job != nil {
		total, _ := job.TotalSize()
		if err := recorder.Record(ev.ID, job.URL, job.Dest, ev.Kind, total, time.Now()); err != nil {
			m.log.Warn().Err(err).Stringer("job", ev.ID).Msg("failed to record history entry")
		}
	}

	m.admit()
}

// addActive records id as newly admitted, at the back of activeOrder.
// Callers must hold m.mu.
func (m *Manager) addActive(id JobID) {
	m.active[id] = struct{}{}
	m.activeOrder = append(m.activeOrder, id)
}

// removeActive drops id from the active set and activeOrder. Callers
// must hold m.mu. A no-op if id isn't active.
func (m *Manager) removeActive(id JobID) {
	if _, ok := m.active[id]; !ok {
		return
	}
	delete(m.active, id)
	for i, existing := range m.activeOrder {
		if existing == id {
			m.activeOrder = append(m.activeOrder[:i], m.activeOrder[i+1:]...)
			break
		}
	}
}

// admit reconciles the active set against the current concurrency
// budget. It always reads Settings.ConcurrencyLimit and the active set
// under the same lock, so a concurrent UpdateSettings can never be
// applied to only half of an admission decision.
//
// Two directions are handled: if the budget was raised (or jobs
// finished), Queued jobs are started up to the new limit. If the budget
// was lowered below the current active count, the excess is demoted
// back to Queued: the first admitted_count - limit jobs in admission
// order give up their slot, regardless of how long they've been
// running.
func (m *Manager) admit() {
	m.mu.Lock()
	limit := m.settings.ConcurrencyLimit

	if excess := len(m.active) - limit; excess > 0 {
		demote := append([]JobID(nil), m.activeOrder[:excess]...)
		workers := make([]*Worker, 0, len(demote))
		for _, id := range demote {
			workers = append(workers, m.workers[id])
			m.removeActive(id)
		}
		m.mu.Unlock()

		for _, w := range workers {
			w.Pause()
		}

		m.mu.Lock()
		for _, id := range demote {
			if job, ok := m.jobs[id]; ok {
				job.setState(LifecycleState{Kind: Queued})
			}
		}
		m.mu.Unlock()
		return
	}

	remaining := limit - len(m.active)
	if remaining <= 0 {
		m.mu.Unlock()
		return
	}

	var toStart []*Worker
	for id, job := range m.jobs {
		if remaining <= 0 {
			break
		}
		if job.State().Kind != Queued {
			continue
		}
		if _, running := m.active[id]; running {
			continue
		}
		m.addActive(id)
		toStart = append(toStart, m.workers[id])
		remaining--
	}
	m.mu.Unlock()

	for _, w := range toStart {
		w := w
		go w.launch(m.ctx)
	}
}

// Submit enqueues a plain single-URL download and immediately attempts
// admission.
func (m *Manager) Submit(url, dest string) JobID {
	threads := m.Settings().DownloadThreads
	return m.submit(url, dest, threads, func(job *Job) *Worker {
		return newWorker(job, m.facade, m.mux, m.Settings, m.events, m.log)
	})
}

// SubmitYtdl enqueues a dual-stream (video+audio) download that is muxed
// together once both streams finish.
func (m *Manager) SubmitYtdl(dest, videoURL, audioURL string) JobID {
	threads := m.Settings().DownloadThreads
	return m.submit(videoURL, dest, threads, func(job *Job) *Worker {
		return newYtdlWorker(job, m.facade, m.mux, m.Settings, m.events, m.log, videoURL, audioURL)
	})
}

func (m *Manager) submit(url, dest string, threads int, makeWorker func(*Job) *Worker) JobID {
	id := NewJobID()
	job := newJob(id, url, dest, threads)
	worker := makeWorker(job)

	m.mu.Lock()
	m.jobs[id] = job
	m.workers[id] = worker
	m.mu.Unlock()

	m.admit()
	return id
}

// Settings returns a copy of the live settings, safe to call from any
// goroutine (including a worker deciding its own thread count).
func (m *Manager) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// UpdateSettings applies a partial patch to the live settings and
// re-runs admission, since a raised ConcurrencyLimit may free up slots
// for jobs that were waiting.
func (m *Manager) UpdateSettings(patch SettingsPatch) {
	m.mu.Lock()
	m.settings = patch.Apply(m.settings)
	m.mu.Unlock()
	m.admit()
}

// QueryURL probes a URL without enqueuing a download, for a control
// surface's "what is this link" preview.
func (m *Manager) QueryURL(ctx context.Context, rawURL string) (*ProbeResult, error) {
	return m.facade.Probe(ctx, rawURL)
}

func (m *Manager) lookup(id JobID) (*Job, *Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil, &NotFoundError{ID: id}
	}
	return job, m.workers[id], nil
}

// Pause requests the job park at its next chunk boundary. A malformed or
// unknown id is returned as an error so the caller (typically a control
// surface handler) can log and drop the command rather than panic.
func (m *Manager) Pause(id JobID) error {
	_, worker, err := m.lookup(id)
	if err != nil {
		return err
	}
	worker.Pause()
	m.mu.Lock()
	m.removeActive(id)
	m.mu.Unlock()
	m.admit()
	return nil
}

// Resume requeues a paused job (or is a no-op for one already running or
// completed).
func (m *Manager) Resume(id JobID) error {
	job, worker, err := m.lookup(id)
	if err != nil {
		return err
	}
	switch job.State().Kind {
	case Completed, Running:
		return nil
	case Paused:
		if job.flags.started.Load() {
			// Fetchers are already alive, parked; re-admit immediately
			// rather than through the normal queue so the concurrency
			// budget reflects that this job is live again right away.
			m.mu.Lock()
			m.addActive(id)
			m.mu.Unlock()
			worker.Resume(m.ctx)
			return nil
		}
		job.setState(LifecycleState{Kind: Queued})
		m.admit()
		return nil
	default:
		job.setState(LifecycleState{Kind: Queued})
		m.admit()
		return nil
	}
}

// Cancel stops the job's fetchers and marks it Cancelled. Per this
// engine's lifecycle invariants, the job's record is kept (not deleted)
// so a subsequent status query still resolves the id instead of reporting
// NotFound.
func (m *Manager) Cancel(id JobID) error {
	_, worker, err := m.lookup(id)
	if err != nil {
		return err
	}
	worker.Cancel()
	m.mu.Lock()
	m.removeActive(id)
	m.mu.Unlock()
	m.admit()
	return nil
}

// JobGlance is a terse per-job snapshot for list views.
type JobGlance struct {
	ID         JobID
	URL        string
	Dest       string
	TotalSize  int64
	HasSize    bool
	Downloaded int64
	Speed      float64
	State      LifecycleState
}

// Glance returns a terse snapshot of every known job, most recently
// submitted first is not guaranteed — callers that need ordering sort by
// whatever field they care about.
func (m *Manager) Glance() []JobGlance {
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	out := make([]JobGlance, 0, len(jobs))
	for _, j := range jobs {
		total, ok := j.TotalSize()
		out = append(out, JobGlance{
			ID: j.ID, URL: j.URL, Dest: j.Dest,
			TotalSize: total, HasSize: ok,
			Downloaded: j.Downloaded(), Speed: j.Speed(), State: j.State(),
		})
	}
	return out
}

// Detail returns a full snapshot of a single job, or NotFoundError.
func (m *Manager) Detail(id JobID) (JobGlance, error) {
	job, _, err := m.lookup(id)
	if err != nil {
		return JobGlance{}, err
	}
	total, ok := job.TotalSize()
	return JobGlance{
		ID: job.ID, URL: job.URL, Dest: job.Dest,
		TotalSize: total, HasSize: ok,
		Downloaded: job.Downloaded(), Speed: job.Speed(), State: job.State(),
	}, nil
}

// Shutdown cancels every active job and stops the background loops. It
// does not wait for fetchers to finish writing their current chunk.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	workers := make([]*Worker, 0, len(m.active))
	for id := range m.active {
		workers = append(workers, m.workers[id])
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.Cancel()
	}
	m.cancel()
	m.wg.Wait()
}

// bandwidthLoop redistributes the configured aggregate speed cap across
// active jobs every tick. It is reactive, not a token bucket: each job's
// share is estimated from the last tick's observed throughput and it is
// handed a sleep-per-chunk budget rather than a refilling allowance, so
// brief bursts above a job's share are possible. That tradeoff is
// intentional — see the design notes on why a token bucket was not used
// here.
func (m *Manager) bandwidthLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.rebalance()
		}
	}
}

const minBandwidthShare = 0.05 // floor: 5% of the global cap per worker

func (m *Manager) rebalance() {
	m.mu.Lock()
	speedCap := m.settings.SpeedLimit
	activeJobs := make([]*Job, 0, len(m.active))
	for id := range m.active {
		activeJobs = append(activeJobs, m.jobs[id])
	}
	m.mu.Unlock()

	if speedCap == 0 || len(activeJobs) == 0 {
		for _, j := range activeJobs {
			j.flags.speedLimit.Store(0)
		}
		return
	}

	var totalSpeed float64
	speeds := make([]float64, len(activeJobs))
	for i, j := range activeJobs {
		speeds[i] = j.Speed()
		totalSpeed += speeds[i]
	}

	floor := float64(speedCap) * minBandwidthShare
	for i, j := range activeJobs {
		var share float64
		if totalSpeed <= 0 {
			share = float64(speedCap) / float64(len(activeJobs))
		} else {
			share = float64(speedCap) * (speeds[i] / totalSpeed)
		}
		if share < floor {
			share = floor
		}
		j.flags.speedLimit.Store(uint64(share))
	}
}
