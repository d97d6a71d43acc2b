package engine

import "github.com/google/uuid"

// JobID identifies a single download across its entire lifetime. It is a
// 128-bit value formatted canonically (36-char hex with hyphens) whenever
// it crosses a boundary (logs, the control surface, the history ledger).
type JobID uuid.UUID

// NewJobID mints a fresh random job identifier.
func NewJobID() JobID {
	return JobID(uuid.New())
}

// String renders the canonical 8-4-4-4-12 hex form.
func (id JobID) String() string {
	return uuid.UUID(id).String()
}

// ParseJobID parses a canonical job id string. A malformed string is
// reported as an error so the caller can log and drop the command, per
// the control surface's handling of unknown/malformed ids.
func ParseJobID(s string) (JobID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return JobID{}, err
	}
	return JobID(u), nil
}

func (id JobID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *JobID) UnmarshalText(text []byte) error {
	u, err := uuid.Parse(string(text))
	if err != nil {
		return err
	}
	*id = JobID(u)
	return nil
}
