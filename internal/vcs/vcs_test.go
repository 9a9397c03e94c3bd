package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tandemcode/tandem/internal/bus"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644))
	run("add", ".")
	run("commit", "-m", "init")
	return dir
}

func TestStatusAndDiff(t *testing.T) {
	dir := initRepo(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new\n"), 0o644))

	files, err := Status(ctx, dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byPath := map[string]FileStatus{}
	for _, f := range files {
		byPath[f.Path] = f
	}
	assert.Equal(t, "modified", byPath["a.txt"].Status)
	assert.Equal(t, 1, byPath["a.txt"].Added)
	assert.Equal(t, 0, byPath["a.txt"].Removed)
	assert.Equal(t, "untracked", byPath["b.txt"].Status)

	diff, err := Diff(ctx, dir, "a.txt")
	require.NoError(t, err)
	assert.Contains(t, diff, "+two")
}

func TestIsRepoAndBranch(t *testing.T) {
	dir := initRepo(t)
	assert.True(t, IsRepo(dir))
	assert.NotEmpty(t, Branch(dir))

	plain := t.TempDir()
	assert.False(t, IsRepo(plain))
	assert.Empty(t, Branch(plain))
}

func TestWatcherPublishesEdits(t *testing.T) {
	b := bus.New()
	defer b.Close()

	dir := t.TempDir()
	w, err := NewWatcher(dir, b, nil)
	require.NoError(t, err)
	defer w.Stop()

	events, unsub := b.Subscribe(bus.FileEdited)
	defer unsub()

	w.Start()
	target := filepath.Join(dir, "watched.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	select {
	case e := <-events:
		data := e.Data.(bus.FileEditedData)
		assert.Equal(t, target, data.File)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a file.edited event")
	}
}

func TestWatcherIgnoresBlacklistedDirs(t *testing.T) {
	b := bus.New()
	defer b.Close()

	dir := t.TempDir()
	ignored := filepath.Join(dir, "node_modules")
	require.NoError(t, os.MkdirAll(ignored, 0o755))

	w, err := NewWatcher(dir, b, nil)
	require.NoError(t, err)
	defer w.Stop()

	events, unsub := b.Subscribe(bus.FileEdited)
	defer unsub()

	w.Start()
	require.NoError(t, os.WriteFile(filepath.Join(ignored, "dep.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seen.txt"), []byte("x"), 0o644))

	select {
	case e := <-events:
		data := e.Data.(bus.FileEditedData)
		assert.Equal(t, filepath.Join(dir, "seen.txt"), data.File)
	case <-time.After(3 * time.Second):
		t.Fatal("expected a file.edited event")
	}
}
