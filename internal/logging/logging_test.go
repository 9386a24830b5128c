package logging

import (
	"bytes"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelWriter(t *testing.T) {
	var out, errs bytes.Buffer
	w := &levelWriter{out: &out, err: &errs}

	_, _ = w.Write([]byte("✅ started\n"))
	_, _ = w.Write([]byte("⚠️ slow backend\n"))
	_, _ = w.Write([]byte("💥 PANIC [bot]: boom\n"))

	assert.Equal(t, 3, strings.Count(out.String(), "\n"))
	assert.Equal(t, "⚠️ slow backend\n💥 PANIC [bot]: boom\n", errs.String())
}

func TestRotateByDay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.log")
	require.NoError(t, os.WriteFile(path, []byte("old line\n"), 0644))
	yesterday := time.Now().Add(-30 * time.Hour)
	require.NoError(t, os.Chtimes(path, yesterday, yesterday))

	f, err := openAppend(path)
	require.NoError(t, err)
	require.NoError(t, rotate(path, "bot", &f, time.Now()))
	require.NotNil(t, f)
	t.Cleanup(func() { _ = f.Close() })

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	var gzPath string
	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(dir, "bot-*.log.gz"))
		if len(matches) != 1 {
			return false
		}
		gzPath = matches[0]
		plain, _ := filepath.Glob(filepath.Join(dir, "bot-*.log"))
		return len(plain) == 0
	}, 2*time.Second, 10*time.Millisecond)

	gf, err := os.Open(gzPath)
	require.NoError(t, err)
	defer gf.Close()
	zr, err := gzip.NewReader(gf)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "old line\n", string(data))
}

func TestRotateSkipsFreshFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.log")
	require.NoError(t, os.WriteFile(path, []byte("today\n"), 0644))

	var f *os.File
	require.NoError(t, rotate(path, "bot", &f, time.Now()))
	matches, _ := filepath.Glob(filepath.Join(dir, "bot-*"))
	assert.Empty(t, matches)
	assert.Nil(t, f)
}

func TestCleanupKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-100 * time.Hour)
	for i := 0; i < maxBackups+3; i++ {
		name := filepath.Join(dir, "bot-"+time.Duration(i).String()+".log.gz")
		require.NoError(t, os.WriteFile(name, nil, 0644))
		mod := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(name, mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "errors-x.log"), nil, 0644))

	cleanup("bot", dir)

	left, _ := filepath.Glob(filepath.Join(dir, "bot-*"))
	assert.Len(t, left, maxBackups)
	_, err := os.Stat(filepath.Join(dir, "bot-0s.log.gz"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "errors-x.log"))
	assert.NoError(t, err)
}

func TestSafeGoRecovers(t *testing.T) {
	done := make(chan struct{})
	SafeGo("test", func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not finish")
	}
}

func TestInitAndClose(t *testing.T) {
	dir := t.TempDir()
	Init(dir, "api", "TEST ")
	t.Cleanup(Close)

	assert.False(t, StartedAt().IsZero())
	_, err := os.Stat(filepath.Join(dir, "api.log"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "errors.log"))
	assert.NoError(t, err)
}
