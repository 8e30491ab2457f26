package watch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMatcher(t *testing.T) {
	tests := []struct {
		name    string
		include string
		exclude []string
		file    string
		want    bool
	}{
		{name: "job file", file: "job-42", want: true},
		{name: "job file with path", file: "/var/lib/ganeti/queue/job-42", want: true},
		{name: "serial file", file: "serial", want: false},
		{name: "lock file", file: "lock", want: false},
		{name: "prefix inside name", file: "old-job-1", want: false},
		{name: "excluded temp file", exclude: []string{"*.tmp"}, file: "job-1.tmp", want: false},
		{name: "custom include", include: "job-[0-9]*", file: "job-x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.file))
		})
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher("job-[", nil)
	assert.Error(t, err)

	_, err = NewMatcher("", []string{"[z"})
	assert.Error(t, err)
}

func TestOp_String(t *testing.T) {
	assert.Equal(t, "close_write", OpCloseWrite.String())
	assert.Equal(t, "moved_to", OpMovedTo.String())
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "write", OpWrite.String())
	assert.Equal(t, "unknown", Op(0).String())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Config{Dir: t.TempDir(), Backend: "kqueue"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWatchRegistration)
}

func TestOpen_MissingDirectory(t *testing.T) {
	for _, backend := range []string{BackendInotify, BackendFsnotify} {
		t.Run(backend, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "does-not-exist")

			src, err := Open(Config{Dir: dir, Backend: backend, Logger: discardLogger()})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrWatchRegistration)
			assert.Nil(t, src)
		})
	}
}

func TestFsnotifySource(t *testing.T) {
	dir := t.TempDir()

	src, err := Open(Config{Dir: dir, Backend: BackendFsnotify, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	writeFiles(t, dir)

	seen := collect(t, src, "job-1", "job-2")
	assert.NotContains(t, seen, "serial")
	assert.NotContains(t, seen, "tmp-2")
}

func TestSource_CloseIsIdempotent(t *testing.T) {
	for _, backend := range []string{BackendInotify, BackendFsnotify} {
		t.Run(backend, func(t *testing.T) {
			if backend == BackendInotify && runtime.GOOS != "linux" {
				t.Skip("inotify requires linux")
			}
			src, err := Open(Config{Dir: t.TempDir(), Backend: backend, Logger: discardLogger()})
			require.NoError(t, err)

			require.NoError(t, src.Close())
			require.NoError(t, src.Close())

			select {
			case _, ok := <-src.Events():
				assert.False(t, ok)
			case <-time.After(time.Second):
				t.Fatal("events channel not closed")
			}
		})
	}
}

// writeFiles writes job-1 in place, renames tmp-2 to job-2 and writes a
// non-job file.
func writeFiles(t *testing.T, dir string) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "serial"), []byte("3\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job-1"), []byte(`{"id": 1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tmp-2"), []byte(`{"id": 2}`), 0o644))
	require.NoError(t, os.Rename(filepath.Join(dir, "tmp-2"), filepath.Join(dir, "job-2")))
}

// collect reads events until every wanted name was seen and returns the
// set of names received.
func collect(t *testing.T, src Source, want ...string) map[string][]Op {
	t.Helper()

	seen := map[string][]Op{}
	deadline := time.After(5 * time.Second)
	for {
		missing := false
		for _, name := range want {
			if _, ok := seen[name]; !ok {
				missing = true
			}
		}
		if !missing {
			return seen
		}

		select {
		case ev, ok := <-src.Events():
			require.True(t, ok, "events channel closed early")
			seen[ev.Name] = append(seen[ev.Name], ev.Op)
			assert.Equal(t, ev.Name, filepath.Base(ev.Path))
		case err := <-src.Errors():
			t.Fatalf("watch error: %v", err)
		case <-deadline:
			t.Fatalf("timed out waiting for %v, saw %v", want, seen)
		}
	}
}
