package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openpapers/papersync/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWatcher(t *testing.T) (*Watcher, string) {
	t.Helper()

	dir := t.TempDir()

	fp, err := fingerprint.New("content")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWatcher(dir, 50*time.Millisecond, fp, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	t.Cleanup(func() {
		cancel()
		require.ErrorIs(t, <-done, context.Canceled)
	})

	// Give the watcher a moment to register the root directory.
	time.Sleep(100 * time.Millisecond)

	return w, dir
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()

	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// --- file events ---

func TestWatch_EmitsCreateAfterSettle(t *testing.T) {
	w, dir := testWatcher(t)

	path := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.7 content"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, "invoice.pdf", ev.Path)
	assert.Equal(t, path, ev.AbsPath)
	assert.Equal(t, Created, ev.Kind)
	assert.False(t, ev.Folder)
	assert.Equal(t, int64(16), ev.Size)
	assert.NotEmpty(t, ev.Fingerprint)
}

func TestWatch_CollapsesRapidWrites(t *testing.T) {
	w, dir := testWatcher(t)

	path := filepath.Join(dir, "scan.pdf")

	f, err := os.Create(path)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := f.WriteString("chunk ")
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	require.NoError(t, f.Close())

	ev := nextEvent(t, w)
	assert.Equal(t, "scan.pdf", ev.Path)
	assert.Equal(t, Created, ev.Kind)
	assert.Equal(t, int64(len("chunk ")*5), ev.Size)

	select {
	case extra := <-w.Events():
		t.Fatalf("expected one settled event, got extra: %+v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatch_EmitsDeleteImmediately(t *testing.T) {
	w, dir := testWatcher(t)

	path := filepath.Join(dir, "old.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ev := nextEvent(t, w)
	require.Equal(t, Created, ev.Kind)

	require.NoError(t, os.Remove(path))

	ev = nextEvent(t, w)
	assert.Equal(t, "old.pdf", ev.Path)
	assert.Equal(t, Deleted, ev.Kind)
	assert.Empty(t, ev.Fingerprint)
}

func TestWatch_RenameEmitsDeleteThenCreate(t *testing.T) {
	w, dir := testWatcher(t)

	oldPath := filepath.Join(dir, "draft.pdf")
	require.NoError(t, os.WriteFile(oldPath, []byte("same bytes"), 0o644))

	ev := nextEvent(t, w)
	require.Equal(t, Created, ev.Kind)
	created := ev.Fingerprint

	require.NoError(t, os.Rename(oldPath, filepath.Join(dir, "final.pdf")))

	ev = nextEvent(t, w)
	assert.Equal(t, "draft.pdf", ev.Path)
	assert.Equal(t, Deleted, ev.Kind)

	ev = nextEvent(t, w)
	assert.Equal(t, "final.pdf", ev.Path)
	assert.Equal(t, Created, ev.Kind)
	assert.Equal(t, created, ev.Fingerprint, "content unchanged across rename")
}

// --- folders ---

func TestWatch_NewFolderEmittedAndWatched(t *testing.T) {
	w, dir := testWatcher(t)

	sub := filepath.Join(dir, "taxes")
	require.NoError(t, os.Mkdir(sub, 0o755))

	ev := nextEvent(t, w)
	assert.Equal(t, "taxes", ev.Path)
	assert.Equal(t, Created, ev.Kind)
	assert.True(t, ev.Folder)

	// Files inside the new folder are picked up.
	require.NoError(t, os.WriteFile(filepath.Join(sub, "2026.pdf"), []byte("x"), 0o644))

	ev = nextEvent(t, w)
	assert.Equal(t, "taxes/2026.pdf", ev.Path)
	assert.Equal(t, Created, ev.Kind)
	assert.False(t, ev.Folder)
}

func TestWatch_PreexistingSubfolderWatched(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))

	fp, err := fingerprint.New("content")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWatcher(dir, 50*time.Millisecond, fp, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "b", "deep.pdf"), []byte("x"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, "a/b/deep.pdf", ev.Path)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestWatch_FolderDeleteMarkedFolder(t *testing.T) {
	w, dir := testWatcher(t)

	sub := filepath.Join(dir, "scans")
	require.NoError(t, os.Mkdir(sub, 0o755))

	ev := nextEvent(t, w)
	require.Equal(t, Created, ev.Kind)
	require.True(t, ev.Folder)

	require.NoError(t, os.Remove(sub))

	ev = nextEvent(t, w)
	assert.Equal(t, "scans", ev.Path)
	assert.Equal(t, Deleted, ev.Kind)
	assert.True(t, ev.Folder, "directory deletes keep their folder identity")
}

func TestWatch_FileDeleteNotMarkedFolder(t *testing.T) {
	w, dir := testWatcher(t)

	path := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ev := nextEvent(t, w)
	require.Equal(t, Created, ev.Kind)

	require.NoError(t, os.Remove(path))

	ev = nextEvent(t, w)
	assert.Equal(t, Deleted, ev.Kind)
	assert.False(t, ev.Folder)
}

// --- Rel ---

func TestRel(t *testing.T) {
	fp, err := fingerprint.New("content")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWatcher("/library", time.Second, fp, logger)

	rel, err := w.Rel("/library/taxes/2026.pdf")
	require.NoError(t, err)
	assert.Equal(t, "taxes/2026.pdf", rel)
}
