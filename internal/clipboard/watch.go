// Package clipboard polls the system clipboard for URLs and offers them
// to a callback, the same "watch and prompt" flow the desktop client this
// engine's control surface serves has always offered.
package clipboard

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/atotto/clipboard"
)

const pollInterval = 1500 * time.Millisecond

// Watch polls the clipboard until ctx is cancelled, invoking onURL once
// for every new clipboard value that parses as an http(s) URL. It never
// calls onURL twice in a row for the same clipboard content, so repeated
// polls of an unchanged clipboard are silent.
func Watch(ctx context.Context, onURL func(string)) error {
	if !clipboard.Unsupported {
		// A clipboard tool is present: touch the clipboard once up
		// front so an environment where it cannot reach a display
		// (no X11/headless) fails fast instead of spinning a useless
		// poll loop. With no tool at all (clipboard.Unsupported) this
		// check is skipped and every poll's failed read is ignored.
		if _, err := clipboard.ReadAll(); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			text, err := clipboard.ReadAll()
			if err != nil || text == last {
				continue
			}
			last = text
			if candidate := extractURL(text); candidate != "" {
				onURL(candidate)
			}
		}
	}
}

// extractURL returns text trimmed if it parses as an absolute http(s)
// URL, otherwise "".
func extractURL(text string) string {
	text = strings.TrimSpace(text)
	u, err := url.Parse(text)
	if err != nil || !u.IsAbs() {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return text
}
