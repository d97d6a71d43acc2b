package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// newYtdlWorker builds a worker for a dual-stream submission: a
// video-only URL and an audio-only URL (as selected by an external
// format-resolution step — this engine never shells out to yt-dlp
// itself, it only consumes the two URLs it is handed) that must be
// downloaded independently and then muxed into one file.
func newYtdlWorker(job *Job, facade *httpFacade, mux Muxer, settings func() Settings, events chan<- LifecycleEvent, log zerolog.Logger, videoURL, audioURL string) *Worker {
	w := newWorker(job, facade, mux, settings, events, log)
	w.isYtdl = true
	w.videoFormatURL = videoURL
	w.audioFormatURL = audioURL
	return w
}

func (w *Worker) runYtdl(ctx context.Context) {
	videoDest := w.job.Dest + ".video.part"
	audioDest := w.job.Dest + ".audio.part"
	defer os.Remove(videoDest)
	defer os.Remove(audioDest)

	settings := w.settings()

	if err := w.downloadStream(ctx, w.videoFormatURL, videoDest, settings); err != nil {
		w.finish(fmt.Errorf("video stream: %w", err))
		return
	}
	if w.job.flags.isCancelled() {
		return
	}
	if w.job.flags.isPaused() {
		w.job.setState(LifecycleState{Kind: Paused})
		return
	}

	if err := w.downloadStream(ctx, w.audioFormatURL, audioDest, settings); err != nil {
		w.finish(fmt.Errorf("audio stream: %w", err))
		return
	}
	if w.job.flags.isCancelled() {
		return
	}
	if w.job.flags.isPaused() {
		w.job.setState(LifecycleState{Kind: Paused})
		return
	}

	if err := w.mux.MuxDualStream(ctx, videoDest, audioDest, w.job.Dest); err != nil {
		w.finish(err)
		return
	}
	w.finish(nil)
}

// downloadStream fetches a single sub-stream URL to destPath, crediting
// bytes to the parent job's counters so overall progress reflects both
// streams combined.
func (w *Worker) downloadStream(ctx context.Context, url, destPath string, settings Settings) error {
	probe, err := w.facade.Probe(ctx, url)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}

	sub := newJob(NewJobID(), url, destPath, w.job.Threads)
	sub.flags = w.job.flags // share pause/cancel/resume with the parent

	if !probe.AcceptRange || probe.TotalSize <= 0 {
		file, err := os.Create(destPath)
		if err != nil {
			return &FatalWorkerError{Reason: "create stream file", Err: err}
		}
		defer file.Close()
		resp, err := w.facade.GetLinear(ctx, url)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		n, err := copyWithProgress(ctx, file, resp.Body, sub, settings.DownloadTimeout)
		w.job.addDownloaded(n)
		return err
	}

	file, err := os.OpenFile(destPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return &FatalWorkerError{Reason: "create stream file", Err: err}
	}
	defer file.Close()
	if err := file.Truncate(probe.TotalSize); err != nil {
		return &FatalWorkerError{Reason: "preallocate stream file", Err: err}
	}

	segments := splitSegments(probe.TotalSize, sub.Threads)
	for _, seg := range segments {
		if err := runSegment(ctx, w.facade, sub, file, seg, settings.DownloadRetries, settings.DownloadTimeout, w.log); err != nil {
			w.job.addDownloaded(sub.Downloaded())
			return err
		}
	}
	w.job.addDownloaded(sub.Downloaded())
	return nil
}
