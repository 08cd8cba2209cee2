package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

const (
	dirPermission  = 0o750
	filePermission = 0o600
)

// Target is implemented by records bound to one scan target.
type Target interface {
	TargetURL() string
}

// Checkpoint persists one record as a JSON file. Writes replace the file
// atomically, so a crash leaves either the previous or the new record.
type Checkpoint[T Target] struct {
	path string
}

// NewCheckpoint returns a checkpoint stored at path.
func NewCheckpoint[T Target](path string) *Checkpoint[T] {
	return &Checkpoint[T]{path: path}
}

// Path returns the checkpoint file location.
func (c *Checkpoint[T]) Path() string { return c.path }

// Load returns the stored record for baseURL. ok is false when no record
// exists. A record for another target is discarded and reported as
// ErrCheckpointMismatch; an unreadable record is discarded as well.
func (c *Checkpoint[T]) Load(baseURL string) (rec T, ok bool, err error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("read checkpoint %s: %w", c.path, err)
	}
	if err := json.Unmarshal(raw, &rec); err != nil {
		var zero T
		return zero, false, errors.Join(fmt.Errorf("decode checkpoint %s: %w", c.path, err), c.Clear())
	}
	if rec.TargetURL() != baseURL {
		got := rec.TargetURL()
		var zero T
		if err := c.Clear(); err != nil {
			return zero, false, err
		}
		return zero, false, fmt.Errorf("%w: have %q, want %q", ErrCheckpointMismatch, got, baseURL)
	}
	return rec, true, nil
}

// Save replaces the stored record.
func (c *Checkpoint[T]) Save(rec T) error {
	return writeJSON(c.path, rec)
}

// Clear removes the stored record. A missing file is not an error.
func (c *Checkpoint[T]) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", c.path, err)
	}
	return nil
}

// writeJSON writes v as indented JSON through a temporary file in the same
// directory followed by a rename.
func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermission); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(filePermission); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// readJSON decodes the file at path into v. ok is false when the file does
// not exist.
func readJSON(path string, v any) (ok bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}
