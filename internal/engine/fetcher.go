package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// segment is a fixed, non-overlapping byte range of the destination file
// that one fetcher goroutine owns for the life of the download. Segment
// boundaries are decided once, up front, and never re-split or stolen:
// the engine favors predictable, literally-testable ranges over adaptive
// work-stealing.
type segment struct {
	index int
	start int64
	end   int64 // inclusive
}

const fetchBufSize = 256 * 1024

// runSegment drives a single segment to completion, making at most
// maxAttempts attempts in total and resuming each retry from the last
// byte actually written rather than restarting the whole segment.
func runSegment(ctx context.Context, f *httpFacade, job *Job, file *os.File, seg segment, maxAttempts int, readTimeout time.Duration, log zerolog.Logger) error {
	progress := seg.start

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if job.flags.isCancelled() {
			return nil
		}
		job.flags.awaitResume()
		if job.flags.isCancelled() {
			return nil
		}

		err := fetchOnce(ctx, f, job, file, seg, &progress, readTimeout, log)
		if err == nil {
			return nil
		}
		if job.flags.isCancelled() {
			return nil
		}
		var fatal *FatalStatusError
		if asFatalStatus(err, &fatal) {
			return err
		}
		log.Warn().Err(err).Int("segment", seg.index).Int("attempt", attempt+1).Msg("segment fetch failed, retrying")
		if attempt == maxAttempts-1 {
			return fmt.Errorf("segment %d exhausted %d attempts: %w", seg.index, maxAttempts, err)
		}
		backoff := time.Duration(attempt+1) * 500 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("segment %d: unreachable", seg.index)
}

func asFatalStatus(err error, target **FatalStatusError) bool {
	for err != nil {
		if fs, ok := err.(*FatalStatusError); ok {
			*target = fs
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func fetchOnce(ctx context.Context, f *httpFacade, job *Job, file *os.File, seg segment, progress *int64, readTimeout time.Duration, log zerolog.Logger) error {
	resp, err := f.GetRange(ctx, job.URL, *progress, seg.end)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	buf := make([]byte, fetchBufSize)
	for {
		if job.flags.isCancelled() {
			return nil
		}
		job.flags.awaitResume()
		if job.flags.isCancelled() {
			return nil
		}

		readCtx, cancel := context.WithTimeout(ctx, readTimeout)
		n, readErr := readWithTimeout(readCtx, resp.Body, buf)
		cancel()

		if n > 0 {
			if _, werr := file.WriteAt(buf[:n], *progress); werr != nil {
				return &FatalWorkerError{Reason: "write destination file", Err: werr}
			}
			*progress += int64(n)
			job.addDownloaded(int64(n))
			job.throttle()
		}

		if readErr != nil {
			if readErr == io.EOF {
				if *progress > seg.end {
					return nil
				}
				if seg.end-seg.start+1 == *progress-seg.start {
					return nil
				}
				return &TransientError{Op: "read-segment", Err: io.ErrUnexpectedEOF}
			}
			return &TransientError{Op: "read-segment", Err: readErr}
		}

		if *progress > seg.end {
			return nil
		}
	}
}

// readWithTimeout performs one Read, treating a context deadline as a
// transient stall rather than letting the caller block forever on a dead
// connection.
func readWithTimeout(ctx context.Context, r io.Reader, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		done <- result{n, err}
	}()
	select {
	case res := <-done:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
