package testutil

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// TempDir creates a fresh temp directory named after prefix and returns
// it alongside a cleanup func that removes it. Callers that would
// otherwise reach for t.TempDir() use this instead when they need the
// directory torn down before the test function returns (e.g. to assert
// it no longer exists).
func TempDir(prefix string) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// FileExists reports whether path exists, regardless of type.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CreateTestFile writes a file of exactly size bytes under dir and
// returns its path. The content is all zeros unless random is true, in
// which case it's filled with crypto/rand output — useful for exercising
// code paths sensitive to compressibility or repeated byte runs.
func CreateTestFile(dir, name string, size int64, random bool) (string, error) {
	path := filepath.Join(dir, name)
	data := make([]byte, size)
	if random {
		if _, err := rand.Read(data); err != nil {
			return "", fmt.Errorf("generate random content: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write test file: %w", err)
	}
	return path, nil
}

// VerifyFileSize returns an error if the file at path doesn't exist or
// isn't exactly want bytes.
func VerifyFileSize(path string, want int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() != want {
		return fmt.Errorf("%s: expected %d bytes, got %d", path, want, info.Size())
	}
	return nil
}
