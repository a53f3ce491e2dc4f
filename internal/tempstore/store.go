// Package tempstore keeps per-request audio artifacts in a private
// directory and removes them when the request is done with them.
package tempstore

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// DerivedSuffix is appended to an acquired path to name its decoded sibling.
const DerivedSuffix = ".wav"

type Store struct {
	dir     string
	owned   bool
	logger  *slog.Logger
	onError func()
}

type Option func(*Store)

// WithReleaseFailureHook is called once for every path that could not be removed.
func WithReleaseFailureHook(fn func()) Option {
	return func(s *Store) {
		s.onError = fn
	}
}

// New uses dir as the storage root, or creates a private directory under
// the system temp dir when dir is empty.
func New(dir string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		created, err := os.MkdirTemp("", "voicecoach-*")
		if err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
		s.dir = created
		s.owned = true
		return s, nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %q: %w", dir, err)
	}
	s.dir = dir
	return s, nil
}

func (s *Store) Dir() string { return s.dir }

// Acquire writes data to a new uniquely named file with the given extension.
// A nil data slice creates an empty file reserved for a later writer.
func (s *Store) Acquire(data []byte, ext string) (string, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	path := filepath.Join(s.dir, uuid.NewString()+ext)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", StripPath(err))
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp file: %w", StripPath(err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp file: %w", StripPath(err))
	}
	return path, nil
}

// StripPath drops the file name from a *fs.PathError so the error can be
// shown to clients without exposing the storage directory.
func StripPath(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

func DerivedPath(path string) string {
	return path + DerivedSuffix
}

// Release deletes every given path that exists. Failures are logged and
// never returned: the caller's response is already decided.
func (s *Store) Release(paths ...string) {
	var result error
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
			if s.onError != nil {
				s.onError()
			}
		}
	}
	if result != nil {
		s.logger.Warn("temp file cleanup failed", "error", result)
	}
}

// Close removes the storage directory if New created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return os.RemoveAll(s.dir)
}
