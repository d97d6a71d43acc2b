package engine

import "time"

// Settings is the live-reconfigurable record shared by every job admitted
// after an UpdateSettings command. Fields are read under Manager.mu so a
// change never applies to only half of the fleet-admission decision.
type Settings struct {
	// SpeedLimit caps aggregate throughput across the whole fleet, in
	// bytes/sec. Zero means unlimited.
	SpeedLimit uint64

	// ConcurrencyLimit is the maximum number of jobs the admission loop
	// will run at once.
	ConcurrencyLimit int

	// DownloadThreads is the default segment count for a newly admitted
	// range-capable job.
	DownloadThreads int

	// DownloadTimeout bounds a single fetcher's read-stall tolerance.
	DownloadTimeout time.Duration

	// DownloadRetries bounds the number of attempts a fetcher makes on
	// one segment before surfacing a transient failure.
	DownloadRetries int

	// ServerPort is carried for the control-surface transport; the
	// engine itself never interprets it.
	ServerPort int
}

// DefaultSettings returns the canonical starting configuration, matching
// the values a freshly started fleet has always shipped with.
func DefaultSettings() Settings {
	return Settings{
		SpeedLimit:       0,
		ConcurrencyLimit: 3,
		DownloadThreads:  8,
		DownloadTimeout:  30 * time.Second,
		DownloadRetries:  5,
		ServerPort:       0,
	}
}

// SettingsPatch carries an UpdateSettings command. Every field is a
// pointer; a nil field leaves the corresponding Settings field untouched.
type SettingsPatch struct {
	SpeedLimit       *uint64
	ConcurrencyLimit *int
	DownloadThreads  *int
	DownloadTimeout  *time.Duration
	DownloadRetries  *int
	ServerPort       *int
}

// Apply returns a copy of s with every non-nil patch field substituted in.
// Absent fields keep their prior values, matching the control surface's
// partial-update contract.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.SpeedLimit != nil {
		s.SpeedLimit = *p.SpeedLimit
	}
	if p.ConcurrencyLimit != nil {
		s.ConcurrencyLimit = *p.ConcurrencyLimit
	}
	if p.DownloadThreads != nil {
		s.DownloadThreads = *p.DownloadThreads
	}
	if p.DownloadTimeout != nil {
		s.DownloadTimeout = *p.DownloadTimeout
	}
	if p.DownloadRetries != nil {
		s.DownloadRetries = *p.DownloadRetries
	}
	if p.ServerPort != nil {
		s.ServerPort = *p.ServerPort
	}
	return s
}
