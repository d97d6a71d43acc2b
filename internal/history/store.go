// Package history keeps a record of terminal download outcomes for
// reporting, one row per job id. It is intentionally separate from the engine's
// in-memory Job state: nothing here is ever read back to reconstruct an
// in-flight download, only to answer "what did I download recently".
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

// Entry is one completed row of the ledger.
type Entry struct {
	ID          string
	URL         string
	Dest        string
	Status      string
	TotalSize   int64
	CompletedAt time.Time
}

// Store wraps a sqlite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS downloads (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			dest TEXT NOT NULL,
			status TEXT NOT NULL,
			total_size INTEGER NOT NULL,
			completed_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one terminal outcome to the ledger. Re-recording the
// same job id overwrites its prior row rather than duplicating it, so a
// job that is resumed after an Error and later completes keeps one row
// holding its latest outcome.
func (s *Store) Record(id engine.JobID, url, dest string, kind engine.LifecycleKind, totalSize int64, completedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO downloads (id, url, dest, status, total_size, completed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET url=excluded.url, dest=excluded.dest, status=excluded.status, total_size=excluded.total_size, completed_at=excluded.completed_at
	`, id.String(), url, dest, kind.String(), totalSize, completedAt.Unix())
	if err != nil {
		return fmt.Errorf("record history entry: %w", err)
	}
	return nil
}

// List returns every ledger row, most recently completed first.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, url, dest, status, total_size, completed_at
		FROM downloads
		ORDER BY completed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var completedAtUnix int64
		if err := rows.Scan(&e.ID, &e.URL, &e.Dest, &e.Status, &e.TotalSize, &completedAtUnix); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CompletedAt = time.Unix(completedAtUnix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
