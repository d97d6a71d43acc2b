package cmd

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"

	"github.com/floodgate-dl/floodgate/internal/config"
)

var serverLock *flock.Flock

// AcquireLock takes an exclusive, non-blocking lock on a file in the
// floodgate state directory, enforcing a single running server per host.
// It returns false (with no error) when another process already holds
// the lock.
func AcquireLock() (bool, error) {
	path := filepath.Join(config.GetStateDir(), "server.lock")
	serverLock = flock.New(path)
	locked, err := serverLock.TryLock()
	if err != nil {
		return false, err
	}
	return locked, nil
}

// ReleaseLock releases the lock acquired by AcquireLock, if any.
func ReleaseLock() error {
	if serverLock == nil {
		return nil
	}
	return serverLock.Unlock()
}

func savePID() {
	path := filepath.Join(config.GetStateDir(), "server.pid")
	_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func removePID() {
	path := filepath.Join(config.GetStateDir(), "server.pid")
	_ = os.Remove(path)
}
