package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker drives one Job from Queued to a terminal state. It owns the
// destination file, the set of fetchers (or the manifest/ytdl pipeline),
// and the sampler that feeds the job's speed history.
type Worker struct {
	job      *Job
	facade   *httpFacade
	mux      Muxer
	settings func() Settings
	events   chan<- LifecycleEvent
	log      zerolog.Logger

	// videoFormatURL/audioFormatURL are set only for dual-stream (ytdl)
	// jobs; URL is otherwise the sole source.
	videoFormatURL string
	audioFormatURL string
	isYtdl         bool
}

func newWorker(job *Job, facade *httpFacade, mux Muxer, settings func() Settings, events chan<- LifecycleEvent, log zerolog.Logger) *Worker {
	return &Worker{job: job, facade: facade, mux: mux, settings: settings, events: events, log: log.With().Stringer("job", job.ID).Logger()}
}

// Start runs the job to completion (or to Paused/Cancelled/Error) and
// always emits exactly one terminal LifecycleEvent unless it was asked to
// pause, in which case the job simply sits in Paused until Resume.
func (w *Worker) Start(ctx context.Context) {
	state := w.job.State()
	switch state.Kind {
	case Completed:
		w.emit(Completed, "")
		return
	case Running:
		return
	}
	if w.job.flags.isPaused() {
		// Paused while still Queued: record the state without ever
		// probing or opening the destination file.
		w.job.setState(LifecycleState{Kind: Paused})
		return
	}
	w.job.setState(LifecycleState{Kind: Running})
	w.job.flags.started.Store(true)

	// The sampler ticks independently of the fetchers so the job's speed
	// history advances even if every fetcher happens to be mid-chunk at
	// the moment a consumer asks for status.
	samplerCtx, stopSampler := context.WithCancel(ctx)
	defer stopSampler()
	go runSampler(samplerCtx, w.job)

	if w.isYtdl {
		w.runYtdl(ctx)
		return
	}

	probe, err := w.facade.Probe(ctx, w.job.URL)
	if err != nil {
		w.fail(fmt.Errorf("probe: %w", err))
		return
	}

	isManifest := probe.IsManifest
	w.job.setProbe(probe.TotalSize, probe.AcceptRange, isManifest)

	settings := w.settings()

	switch {
	case isManifest:
		w.runManifest(ctx, settings)
	case !probe.AcceptRange || probe.TotalSize <= 0 || w.job.Threads <= 1:
		w.runLinear(ctx, settings)
	default:
		w.runParallel(ctx, probe.TotalSize, settings)
	}
}

func (w *Worker) runManifest(ctx context.Context, settings Settings) {
	err := runManifestDownload(ctx, w.facade, w.job, w.mux, settings.DownloadTimeout, settings.DownloadRetries)
	if w.job.flags.isCancelled() {
		return
	}
	if err == nil && w.job.flags.isPaused() {
		w.job.setState(LifecycleState{Kind: Paused})
		return
	}
	w.finish(err)
}

func (w *Worker) runLinear(ctx context.Context, settings Settings) {
	file, err := os.Create(w.job.Dest)
	if err != nil {
		w.fail(&FatalWorkerError{Reason: "create destination file", Err: err})
		return
	}
	defer file.Close()

	var attemptErr error
	for attempt := 0; attempt < settings.DownloadRetries; attempt++ {
		if w.job.flags.isCancelled() {
			return
		}
		if err := file.Truncate(0); err != nil {
			w.fail(&FatalWorkerError{Reason: "truncate destination file", Err: err})
			return
		}
		if _, err := file.Seek(0, 0); err != nil {
			w.fail(&FatalWorkerError{Reason: "seek destination file", Err: err})
			return
		}
		w.job.downloaded.Store(0)

		resp, err := w.facade.GetLinear(ctx, w.job.URL)
		if err != nil {
			attemptErr = err
			continue
		}
		_, copyErr := copyWithProgress(ctx, file, resp.Body, w.job, settings.DownloadTimeout)
		resp.Body.Close()
		if w.job.flags.isCancelled() {
			return
		}
		if w.job.flags.isPaused() {
			w.job.setState(LifecycleState{Kind: Paused})
			return
		}
		if copyErr == nil {
			w.finish(nil)
			return
		}
		attemptErr = copyErr
	}
	w.finish(fmt.Errorf("linear download exhausted retries: %w", attemptErr))
}

func (w *Worker) runParallel(ctx context.Context, totalSize int64, settings Settings) {
	file, err := os.OpenFile(w.job.Dest, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		w.fail(&FatalWorkerError{Reason: "create destination file", Err: err})
		return
	}
	defer file.Close()
	if err := file.Truncate(totalSize); err != nil {
		w.fail(&FatalWorkerError{Reason: "preallocate destination file", Err: err})
		return
	}

	segments := splitSegments(totalSize, w.job.Threads)

	group, gctx := errgroup.WithContext(ctx)
	for _, seg := range segments {
		seg := seg
		group.Go(func() error {
			return runSegment(gctx, w.facade, w.job, file, seg, settings.DownloadRetries, settings.DownloadTimeout, w.log)
		})
	}

	err = group.Wait()
	if w.job.flags.isCancelled() {
		return
	}
	if err != nil {
		w.finish(err)
		return
	}
	if w.job.flags.isPaused() {
		w.job.setState(LifecycleState{Kind: Paused})
		return
	}
	if syncErr := file.Sync(); syncErr != nil {
		w.finish(&FatalWorkerError{Reason: "sync destination file", Err: syncErr})
		return
	}
	w.finish(nil)
}

// splitSegments divides [0, totalSize) into `threads` roughly-equal,
// contiguous, non-overlapping ranges. The last segment absorbs any
// remainder so the sum of segment lengths always equals totalSize exactly.
func splitSegments(totalSize int64, threads int) []segment {
	if threads < 1 {
		threads = 1
	}
	partSize := totalSize / int64(threads)
	if partSize < 1 {
		partSize = 1
		threads = int(totalSize)
		if threads < 1 {
			threads = 1
		}
	}

	segments := make([]segment, 0, threads)
	var offset int64
	for i := 0; i < threads; i++ {
		start := offset
		var end int64
		if i == threads-1 {
			end = totalSize - 1
		} else {
			end = start + partSize - 1
		}
		segments = append(segments, segment{index: i, start: start, end: end})
		offset = end + 1
	}
	return segments
}

// runSampler records a sample point once per second for the life of the
// job, independent of how many bytes actually moved in that window — a
// flat window is itself meaningful (it means the job stalled).
func runSampler(ctx context.Context, job *Job) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job.sample(nowMillis())
		}
	}
}

func (w *Worker) finish(err error) {
	if err != nil {
		w.fail(err)
		return
	}
	w.job.setState(LifecycleState{Kind: Completed})
	w.emit(Completed, "")
}

func (w *Worker) fail(err error) {
	w.job.setState(LifecycleState{Kind: Error, Message: err.Error()})
	w.emit(Error, err.Error())
}

func (w *Worker) emit(kind LifecycleKind, message string) {
	event := LifecycleEvent{ID: w.job.ID, Kind: kind, Message: message}
	select {
	case w.events <- event:
	default:
		// The intake channel is bounded; a full channel here means the
		// manager's consumer has fallen behind. Log and drop rather than
		// block a worker goroutine forever on a slow consumer.
		w.log.Warn().Str("event", kind.String()).Msg("lifecycle event dropped, intake channel full")
	}
}

// launch is the admission loop's entry point for a Queued job: one that
// demoted out of the active set mid-fetch is still parked in place
// (flags.started and flags.paused both true), so it only needs waking
// rather than a fresh Start; anything else — never started, or retrying
// out of Error — goes through Start as usual.
func (w *Worker) launch(ctx context.Context) {
	if w.job.flags.started.Load() && w.job.flags.isPaused() {
		w.job.flags.resume()
		w.job.setState(LifecycleState{Kind: Running})
		return
	}
	w.Start(ctx)
}

// Pause requests that every in-flight fetcher park at its next chunk
// boundary and immediately records the job as Paused. It does not block
// for the fetchers to actually notice.
func (w *Worker) Pause() {
	w.job.flags.pause()
	w.job.setState(LifecycleState{Kind: Paused})
}

// Resume clears the pause flag. If the job's fetchers are already alive
// (parked in awaitResume), waking them is all that is needed. If the job
// was paused before it ever started fetching, Start is launched for the
// first time now.
func (w *Worker) Resume(ctx context.Context) {
	w.job.flags.resume()
	if !w.job.flags.started.Load() {
		go w.Start(ctx)
		return
	}
	if w.job.State().Kind == Paused {
		w.job.setState(LifecycleState{Kind: Running})
	}
}

// Cancel requests that every in-flight fetcher stop at its next chunk
// boundary and marks the job Cancelled. Unlike some download engines,
// cancellation here keeps the job's record (and id) resolvable by status
// queries rather than deleting it outright.
func (w *Worker) Cancel() {
	w.job.flags.cancel()
	w.job.setState(LifecycleState{Kind: Cancelled})
	w.emit(Cancelled, "")
}
