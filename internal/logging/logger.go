// Package logging sets up the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger that writes to both stderr (colorized,
// human-friendly) and a plain JSON file under dir, mirroring how prior
// iterations of this tool kept a single timestamped debug file but adding
// levels and structured fields.
func New(dir string, debug bool) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}

	if dir == "" {
		return zerolog.New(console).Level(level).With().Timestamp().Logger(), func() error { return nil }, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return zerolog.Logger{}, nil, err
	}
	logPath := filepath.Join(dir, "floodgate.log")
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	multi := io.MultiWriter(console, file)
	logger := zerolog.New(multi).Level(level).With().Timestamp().Logger()
	return logger, file.Close, nil
}
