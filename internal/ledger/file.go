package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileBackend persists the ledger as a single JSON array. Every Save
// rewrites the file through a temporary file and an atomic rename, so a
// crash mid-write leaves the previous version intact.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend for the JSON file at path. The file and
// its directory are created on the first Save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: filepath.Clean(path)}
}

// Path returns the ledger file location.
func (f *FileBackend) Path() string { return f.path }

// Load implements Backend.
func (f *FileBackend) Load(_ context.Context) ([]*Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoLedger
		}
		return nil, fmt.Errorf("read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrMalformed, f.path)
	}
	return DecodeRecords(bytes.NewReader(data))
}

// Save implements Backend.
func (f *FileBackend) Save(_ context.Context, records []*Record) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := EncodeRecords(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}

// Quarantine implements Quarantiner by renaming the file to
// <path>.corrupt-<unix-nanos>.
func (f *FileBackend) Quarantine(_ context.Context) (string, error) {
	dest := f.path + ".corrupt-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Rename(f.path, dest); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", f.path, err)
	}
	return dest, nil
}

// Close implements Backend. Every Save is already durable.
func (f *FileBackend) Close() error { return nil }

var (
	_ Backend     = (*FileBackend)(nil)
	_ Quarantiner = (*FileBackend)(nil)
)
