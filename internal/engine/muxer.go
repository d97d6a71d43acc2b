package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Muxer invokes an external process to combine already-downloaded parts
// into the final destination file. It exists so the segment fetchers
// never need to know about container formats.
type Muxer interface {
	// MuxManifestSegments concatenates segment files (already downloaded
	// in manifest order) into dest.
	MuxManifestSegments(ctx context.Context, segmentFiles []string, dest string) error

	// MuxDualStream combines a separately downloaded video-only and
	// audio-only file into dest.
	MuxDualStream(ctx context.Context, videoFile, audioFile, dest string) error
}

// execMuxer shells out to ffmpeg, matching how the original download
// engine's yt-dlp/HLS flows always finished with an external mux step
// rather than a hand-rolled container writer.
type execMuxer struct {
	binary string
}

// NewExecMuxer returns a Muxer backed by the named executable (normally
// "ffmpeg" resolved from PATH).
func NewExecMuxer(binary string) Muxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &execMuxer{binary: binary}
}

// MuxManifestSegments writes the concat list as mylist.txt alongside the
// segment files (segmentFiles all share one temp_<id>/ staging directory,
// which the caller removes once muxing is done) rather than a separately
// managed temp file.
func (m *execMuxer) MuxManifestSegments(ctx context.Context, segmentFiles []string, dest string) error {
	if len(segmentFiles) == 0 {
		return &FatalWorkerError{Reason: "mux segments: no segment files"}
	}
	listPath := filepath.Join(filepath.Dir(segmentFiles[0]), "mylist.txt")
	listFile, err := os.Create(listPath)
	if err != nil {
		return &FatalWorkerError{Reason: "create concat list", Err: err}
	}

	for _, f := range segmentFiles {
		if _, err := fmt.Fprintf(listFile, "file '%s'\n", f); err != nil {
			listFile.Close()
			return &FatalWorkerError{Reason: "write concat list", Err: err}
		}
	}
	if err := listFile.Close(); err != nil {
		return &FatalWorkerError{Reason: "close concat list", Err: err}
	}

	// ffmpeg -f concat -safe 0 -i mylist.txt -c copy dest
	cmd := exec.CommandContext(ctx, m.binary,
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy", "-y", dest,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &FatalWorkerError{Reason: fmt.Sprintf("mux segments: %s", string(out)), Err: err}
	}
	return nil
}

func (m *execMuxer) MuxDualStream(ctx context.Context, videoFile, audioFile, dest string) error {
	// ffmpeg -i V -i A -c copy -map 0:v:0 -map 1:a:0 -y dest
	cmd := exec.CommandContext(ctx, m.binary,
		"-i", videoFile,
		"-i", audioFile,
		"-c", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-y", dest,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &FatalWorkerError{Reason: fmt.Sprintf("mux dual stream: %s", string(out)), Err: err}
	}
	return nil
}
