package mailbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newmatik/gerbtrace-shell/pkg/log"
)

const (
	helperDirEnv     = "MAILBOX_HELPER_DIR"
	helperPayloadEnv = "MAILBOX_HELPER_PAYLOAD"
)

// TestMain doubles as a child process that saves a record and exits
// immediately, with no deferred cleanup, like a process being replaced by
// the updater.
func TestMain(m *testing.M) {
	if dir := os.Getenv(helperDirEnv); dir != "" {
		if err := NewAt(dir).Save(os.Getenv(helperPayloadEnv)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Debug(string, ...log.Field) {}
func (l *recordingLogger) Info(string, ...log.Field)  {}
func (l *recordingLogger) Error(string, ...log.Field) {}
func (l *recordingLogger) Warn(msg string, _ ...log.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func skipIfPermissionsIgnored(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("directory permissions are not enforced on windows")
	}
	if os.Geteuid() == 0 {
		t.Skip("running as root, permissions are not enforced")
	}
}

func TestSaveConsume_RoundTrip(t *testing.T) {
	payloads := []string{
		`{"version":"2.3.0"}`,
		"",
		"plain text, not json",
		"multi\nline\r\npayload\x00with nul",
		`{"notes":"Ünïcödé ✓ 漢字"}`,
	}

	for _, p := range payloads {
		t.Run(fmt.Sprintf("%q", p), func(t *testing.T) {
			mb := NewAt(t.TempDir())

			require.NoError(t, mb.Save(p))

			got, ok := mb.Consume()
			require.True(t, ok)
			assert.Equal(t, p, got)
		})
	}
}

func TestSave_OverwritesPreviousRecord(t *testing.T) {
	mb := NewAt(t.TempDir())

	require.NoError(t, mb.Save(`{"version":"1.0.0","long":"xxxxxxxxxxxxxxxxxxxxxxxx"}`))
	require.NoError(t, mb.Save(`{"version":"2.0.0"}`))

	got, ok := mb.Consume()
	require.True(t, ok)
	assert.Equal(t, `{"version":"2.0.0"}`, got)

	_, ok = mb.Consume()
	assert.False(t, ok)
}

func TestConsume_ClearsState(t *testing.T) {
	mb := NewAt(t.TempDir())
	require.NoError(t, mb.Save("payload"))

	_, ok := mb.Consume()
	require.True(t, ok)
	assert.False(t, mb.Pending())

	got, ok := mb.Consume()
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestConsume_FreshEnvironment(t *testing.T) {
	mb := NewAt(filepath.Join(t.TempDir(), "never", "created"))

	got, ok := mb.Consume()
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.False(t, mb.Pending())
}

func TestSave_CreatesMissingDirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "com.newmatik.gerbtrace")
	mb := NewAt(dir)

	require.NoError(t, mb.Save("x"))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.FileExists(t, filepath.Join(dir, FileName))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	mb := NewAt(dir)

	require.NoError(t, mb.Save("one"))
	require.NoError(t, mb.Save("two"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestSave_FileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits only")
	}
	dir := t.TempDir()

	require.NoError(t, NewAt(dir).Save("x"))
	info, err := os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, NewAt(dir, WithFileMode(0o640)).Save("y"))
	info, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestSave_SurvivesAbruptExit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	const payload = `{"version":"2.3.0"}`

	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(os.Environ(), helperDirEnv+"="+dir, helperPayloadEnv+"="+payload)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "helper output: %s", out)

	// A fresh instance stands in for the relaunched process.
	mb := NewAt(dir)
	got, ok := mb.Consume()
	require.True(t, ok)
	assert.Equal(t, payload, got)

	_, ok = mb.Consume()
	assert.False(t, ok)
}

func TestSave_UnresolvableDataDir(t *testing.T) {
	cause := errors.New("no home directory")
	mb := New(func() (string, error) { return "", cause })

	err := mb.Save("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataDirUnavailable)
	assert.ErrorIs(t, err, cause)

	_, ok := mb.Consume()
	assert.False(t, ok)
	assert.False(t, mb.Pending())
}

func TestSave_EmptyDataDir(t *testing.T) {
	mb := New(func() (string, error) { return "", nil })
	assert.ErrorIs(t, mb.Save("x"), ErrDataDirUnavailable)
}

func TestSave_DirectoryCreationFails(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("file, not dir"), 0o600))

	mb := NewAt(filepath.Join(blocker, "data"))
	err := mb.Save("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)
	assert.Contains(t, err.Error(), "create data dir")
}

func TestSave_FailureKeepsPreviousRecord(t *testing.T) {
	skipIfPermissionsIgnored(t)

	dir := t.TempDir()
	mb := NewAt(dir)
	require.NoError(t, mb.Save("old"))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	err := mb.Save("new")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestConsume_ReturnsPayloadWhenRemoveFails(t *testing.T) {
	skipIfPermissionsIgnored(t)

	dir := t.TempDir()
	logger := &recordingLogger{}
	mb := NewAt(dir, WithLogger(logger))
	require.NoError(t, mb.Save("payload"))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	got, ok := mb.Consume()
	require.True(t, ok)
	assert.Equal(t, "payload", got)
	assert.Equal(t, []string{"failed to remove consumed post-update info"}, logger.warns)

	// The stale record is overwritten by the next save.
	require.NoError(t, os.Chmod(dir, 0o700))
	require.NoError(t, mb.Save("next"))
	got, ok = mb.Consume()
	require.True(t, ok)
	assert.Equal(t, "next", got)
}

func TestConsume_UnreadableRecordIsAbsent(t *testing.T) {
	dir := t.TempDir()
	// A directory where the record should be cannot be read as a file.
	require.NoError(t, os.Mkdir(filepath.Join(dir, FileName), 0o700))

	logger := &recordingLogger{}
	got, ok := NewAt(dir, WithLogger(logger)).Consume()
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, []string{"post-update info unreadable"}, logger.warns)
}

func TestConsume_InvalidUTF8IsAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("a\xffb"), 0o600))

	logger := &recordingLogger{}
	got, ok := NewAt(dir, WithLogger(logger)).Consume()
	assert.False(t, ok)
	assert.Empty(t, got)
	assert.Equal(t, []string{"post-update info is not valid UTF-8"}, logger.warns)

	// The bytes are left untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("a\xffb"), data)
}

func TestSave_DirFlushFailureLeavesNewRecord(t *testing.T) {
	flushErr := errors.New("flush refused")
	orig := flushDir
	flushDir = func(string) error { return flushErr }
	t.Cleanup(func() { flushDir = orig })

	dir := t.TempDir()
	mb := NewAt(dir)

	err := mb.Save("fresh")
	require.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, flushErr)

	got, ok := mb.Consume()
	require.True(t, ok)
	assert.Equal(t, "fresh", got)
}

func TestPath(t *testing.T) {
	dir := t.TempDir()
	p, err := NewAt(dir).Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "post_update_info.json"), p)

	_, err = New(nil).Path()
	assert.ErrorIs(t, err, ErrDataDirUnavailable)
}

func TestPending(t *testing.T) {
	mb := NewAt(t.TempDir())
	assert.False(t, mb.Pending())

	require.NoError(t, mb.Save("x"))
	assert.True(t, mb.Pending())

	// Pending does not consume.
	got, ok := mb.Consume()
	require.True(t, ok)
	assert.Equal(t, "x", got)
}
