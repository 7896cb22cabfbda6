package mailbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

// FileName is the record's name inside the application data directory.
const FileName = "post_update_info.json"

const (
	dirMode         = 0o700
	defaultFileMode = 0o600
)

// flushDir is replaced in tests.
var flushDir = syncDir

// Mailbox is the single-slot post-update store.
type Mailbox struct {
	resolve func() (string, error)
	logger  log.Logger
	mode    os.FileMode
}

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l log.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithFileMode sets the permission bits of the record file.
func WithFileMode(mode os.FileMode) Option {
	return func(m *Mailbox) {
		if mode != 0 {
			m.mode = mode.Perm()
		}
	}
}

// New creates a Mailbox whose directory is looked up on every call.
// Resolution errors are reported by the operations, not here.
func New(resolve func() (string, error), opts ...Option) *Mailbox {
	m := &Mailbox{
		resolve: resolve,
		logger:  log.NewNoopLogger(),
		mode:    defaultFileMode,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewAt creates a Mailbox stored in dir.
func NewAt(dir string, opts ...Option) *Mailbox {
	return New(func() (string, error) { return dir, nil }, opts...)
}

// Path returns the location of the record file.
func (m *Mailbox) Path() (string, error) {
	if m.resolve == nil {
		return "", fmt.Errorf("%w: no resolver", ErrDataDirUnavailable)
	}
	dir, err := m.resolve()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDataDirUnavailable, err)
	}
	if dir == "" {
		return "", fmt.Errorf("%w: empty path", ErrDataDirUnavailable)
	}
	return filepath.Join(dir, FileName), nil
}

// Save stores payload, replacing any pending record. It returns once the
// bytes are on stable storage.
//
// A failure to flush the directory after the rename is still reported as
// ErrIO, although the new record is then already in place and visible to
// Consume; only its survival across a crash is uncertain.
func (m *Mailbox) Save(payload string) error {
	path, err := m.Path()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: create data dir %s: %w", ErrIO, dir, err)
	}

	if err := writeFileSync(path, []byte(payload), m.mode); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}

	m.logger.Debug("post-update info saved", log.String("path", path), log.Int("bytes", len(payload)))
	return nil
}

// Consume returns the pending payload and removes it. ok is false when
// nothing is pending or the record cannot be read.
func (m *Mailbox) Consume() (payload string, ok bool) {
	path, err := m.Path()
	if err != nil {
		m.logger.Debug("post-update info skipped", log.Err(err))
		return "", false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("post-update info unreadable", log.String("path", path), log.Err(err))
		}
		return "", false
	}
	if !utf8.Valid(data) {
		// Not text. The file is left in place for the next Save to replace.
		m.logger.Warn("post-update info is not valid UTF-8", log.String("path", path), log.Int("bytes", len(data)))
		return "", false
	}

	// The payload is returned even if removal fails; the next Save
	// overwrites the stale file.
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.logger.Warn("failed to remove consumed post-update info", log.String("path", path), log.Err(err))
	}

	m.logger.Debug("post-update info consumed", log.String("path", path), log.Int("bytes", len(data)))
	return string(data), true
}

// Pending reports whether a record is waiting, without consuming it.
func (m *Mailbox) Pending() bool {
	path, err := m.Path()
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeFileSync writes data to a temp file next to path, flushes it, and
// renames it over path. The directory entry is flushed too.
func writeFileSync(path string, data []byte, mode os.FileMode) (err error) {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = tmp.Chmod(mode); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	if err = flushDir(dir); err != nil {
		return fmt.Errorf("sync dir: %w", err)
	}
	return nil
}
