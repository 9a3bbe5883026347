package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// syncBuffer is a bytes.Buffer safe for one writer goroutine and one
// reader goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch_ReasonsAgainOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeFile(t, dir, "zoo.yaml", "axioms: [[A, subclass_of, B]]\n")

	out := &syncBuffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--debounce", "20ms", filepath.Join(dir, "*.yaml")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "consistent (run ") == 1
	}, 10*time.Second, 10*time.Millisecond, "first run")
	assert.NotContains(t, out.String(), "parents:")

	src, err := os.ReadFile(ontologyPath("disjoint.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, src, 0o644))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "parents:\n  X: Nothing\n")
	}, 10*time.Second, 10*time.Millisecond, "run after change")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatch_ReportsBadInputAndKeepsGoing(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeFile(t, dir, "zoo.yaml", "axioms: [[A, subclass_of]]\n")

	out := &syncBuffer{}
	cmd := NewWatchCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"--debounce", "20ms", filepath.Join(dir, "*.yaml")})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Error [E202]")
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("axioms: [[A, subclass_of, B]]\n"), 0o644))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "consistent (run ")
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_Relevant(t *testing.T) {
	w := &watcher{
		patterns: []string{"onto/**/*.yaml", "zoo.cue"},
		logger:   slog.New(slog.DiscardHandler),
	}
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"write nested", fsnotify.Event{Name: "onto/a/b.yaml", Op: fsnotify.Write}, true},
		{"create top", fsnotify.Event{Name: "onto/b.yaml", Op: fsnotify.Create}, true},
		{"remove", fsnotify.Event{Name: "zoo.cue", Op: fsnotify.Remove}, true},
		{"chmod", fsnotify.Event{Name: "zoo.cue", Op: fsnotify.Chmod}, false},
		{"other extension", fsnotify.Event{Name: "onto/b.txt", Op: fsnotify.Write}, false},
		{"outside", fsnotify.Event{Name: "other/b.yaml", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.relevant(tt.event))
		})
	}
}

func TestWatcher_AddWatchesRecursive(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))

	fsw, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer fsw.Close()

	w := &watcher{logger: slog.New(slog.DiscardHandler)}
	require.NoError(t, w.addWatches(fsw, filepath.Join(dir, "**", "*.yaml")))
	assert.ElementsMatch(t, []string{dir, filepath.Join(dir, "a"), filepath.Join(dir, "a", "b")}, fsw.WatchList())
}
