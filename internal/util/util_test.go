package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "converttempfile.usm")
	dst := filepath.Join(dir, "movie.usm")

	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	require.NoError(t, ReplaceFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.NoFileExists(t, src)
	assert.NoFileExists(t, dst+".bak")
}

func TestReplaceFile_KeepsUnrelatedBackupFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "converttempfile.usm")
	dst := filepath.Join(dir, "movie.usm")
	userBak := dst + ".bak"

	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(userBak, []byte("mine"), 0o644))

	require.NoError(t, ReplaceFile(src, dst))

	got, err := os.ReadFile(userBak)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(got))
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"movie.usm", "movie.usm.bak"}, names)
}

func TestReplaceFile_SamePathIsNoop(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.usm")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	require.NoError(t, ReplaceFile(p, filepath.Join(dir, ".", "a.usm")))
	assert.FileExists(t, p)
}

func TestReplaceFile_MissingSourceRestoresDestination(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "movie.usm")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o644))

	err := ReplaceFile(filepath.Join(dir, "missing.usm"), dst)
	require.Error(t, err)

	got, rerr := os.ReadFile(dst)
	require.NoError(t, rerr)
	assert.Equal(t, "old", string(got))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWaitQuiet(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out.ivf")

	// Missing file returns at once.
	start := time.Now()
	require.NoError(t, WaitQuiet(context.Background(), p, time.Second, 2*time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	start = time.Now()
	require.NoError(t, WaitQuiet(context.Background(), p, 50*time.Millisecond, time.Second))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, WaitQuiet(ctx, p, time.Second, time.Second), context.Canceled)
}

func TestParseMediaURL(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		host    string
	}{
		{"https://www.youtube.com/watch?v=abc", false, "www.youtube.com"},
		{"youtu.be/abc", false, "youtu.be"},
		{"http://127.0.0.1:8080/v.webm", false, "127.0.0.1:8080"},
		{"", true, ""},
		{"ftp://example.com/file", true, ""},
		{"not a url", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			u, err := ParseMediaURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, u.Host)
		})
	}
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c\nd", Tail([]byte("a\nb\nc\nd\n"), 2))
	assert.Equal(t, "a", Tail([]byte("a"), 5))
}

func TestLogicalCPUs(t *testing.T) {
	assert.GreaterOrEqual(t, LogicalCPUs(), 1)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "ffmpeg -i 'my file.webm' out.ivf", shellQuote("ffmpeg", []string{"-i", "my file.webm", "out.ivf"}))
	assert.Equal(t, "x ''", shellQuote("x", []string{""}))
}

func TestLineRing(t *testing.T) {
	r := newLineRing(3)
	assert.Nil(t, r.bytes())

	r.add("a")
	r.add("b")
	assert.Equal(t, "a\nb\n", string(r.bytes()))

	for _, l := range []string{"c", "d", "e"} {
		r.add(l)
	}
	assert.Equal(t, "c\nd\ne\n", string(r.bytes()))
}
