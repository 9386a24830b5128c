// Package logging sets up the process-wide stdlib logger: stdout plus a
// main log file, warnings and errors teed into errors.log, daily or
// size-based rotation with gzip of the rotated files.
package logging

import (
	"compress/gzip"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxSizeMB  = 10
	maxBackups = 10

	errorsName = "errors"
)

type state struct {
	mu      sync.Mutex
	dir     string
	name    string
	main    *os.File
	errs    *os.File
	stdout  io.Writer
	started time.Time
}

var current = &state{stdout: os.Stdout}

// Init points the standard logger at dir/<name>.log and dir/errors.log.
// Repeated calls are no-ops until Close.
func Init(dir, name, prefix string) {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetPrefix(prefix)

	s := current
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.main != nil {
		return
	}
	s.dir, s.name, s.started = dir, name, time.Now()
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("⚠️ Не удалось создать директорию логов: %v", err)
	}
	s.rotateLocked()

	mainFile, err := openAppend(s.mainPath())
	if err != nil {
		log.Printf("⚠️ Не удалось открыть %s: %v", s.mainPath(), err)
		return
	}
	errFile, err := openAppend(s.errPath())
	if err != nil {
		log.Printf("⚠️ Не удалось открыть %s: %v", s.errPath(), err)
	}
	s.main, s.errs = mainFile, errFile
	log.SetOutput(s.writerLocked())
}

func Close() {
	s := current
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.main != nil {
		_ = s.main.Close()
		s.main = nil
	}
	if s.errs != nil {
		_ = s.errs.Close()
		s.errs = nil
	}
	log.SetOutput(s.stdout)
}

// StartedAt is the time of the last Init.
func StartedAt() time.Time {
	current.mu.Lock()
	defer current.mu.Unlock()
	return current.started
}

// SafeGo runs fn in a goroutine and logs a panic instead of crashing.
func SafeGo(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover must be deferred directly.
func Recover(name string) {
	if r := recover(); r != nil {
		log.Printf("💥 PANIC [%s]: %v\n%s", name, r, string(debug.Stack()))
	}
}

// RotateIfNeeded rotates both files when they are too big or were last
// written on another day.
func RotateIfNeeded() {
	s := current
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dir == "" {
		return
	}
	s.rotateLocked()
	log.SetOutput(s.writerLocked())
}

func (s *state) mainPath() string { return filepath.Join(s.dir, s.name+".log") }

func (s *state) errPath() string { return filepath.Join(s.dir, errorsName+".log") }

func (s *state) rotateLocked() {
	if err := rotate(s.mainPath(), s.name, &s.main, time.Now()); err != nil {
		log.Printf("⚠️ Ротация %s: %v", s.mainPath(), err)
	}
	if err := rotate(s.errPath(), errorsName, &s.errs, time.Now()); err != nil {
		log.Printf("⚠️ Ротация %s: %v", s.errPath(), err)
	}
}

func (s *state) writerLocked() io.Writer {
	out := s.stdout
	if s.main != nil {
		out = io.MultiWriter(s.stdout, s.main)
	}
	if s.errs == nil {
		return out
	}
	return &levelWriter{out: out, err: s.errs}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// rotate renames path to <prefix>-<stamp>.log, reopens *file when it was
// open and compresses the rotated copy in the background.
func rotate(path, prefix string, file **os.File, now time.Time) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	bySize := info.Size() >= int64(maxSizeMB)*1024*1024
	byDay := !sameDay(info.ModTime(), now) && info.Size() > 0
	if !bySize && !byDay {
		return nil
	}

	wasOpen := *file != nil
	if wasOpen {
		_ = (*file).Close()
		*file = nil
	}

	dir := filepath.Dir(path)
	rotated := filepath.Join(dir, prefix+"-"+now.Format("20060102-150405")+".log")
	if err := os.Rename(path, rotated); err != nil {
		return err
	}
	if wasOpen {
		f, err := openAppend(path)
		if err != nil {
			return err
		}
		*file = f
	}
	SafeGo("log-compress-"+prefix, func() {
		compress(rotated)
		cleanup(prefix, dir)
	})
	return nil
}

// levelWriter copies warning and error lines into a second file.
type levelWriter struct {
	out io.Writer
	err io.Writer
}

func (w *levelWriter) Write(p []byte) (int, error) {
	_, _ = w.out.Write(p)
	if isErrorLine(string(p)) {
		_, _ = w.err.Write(p)
	}
	return len(p), nil
}

func isErrorLine(line string) bool {
	for _, marker := range []string{"⚠️", "❌", "PANIC", "ERROR"} {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func compress(path string) {
	if strings.HasSuffix(path, ".gz") {
		return
	}
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(out)
	_, copyErr := io.Copy(gz, in)
	closeErr := gz.Close()
	_ = out.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path + ".gz")
		return
	}
	_ = in.Close()
	_ = os.Remove(path)
}

// cleanup keeps the newest maxBackups rotated files of prefix.
func cleanup(prefix, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		name string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") {
			continue
		}
		if ext := filepath.Ext(name); ext != ".log" && ext != ".gz" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{name: name, mod: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	for i := maxBackups; i < len(backups); i++ {
		_ = os.Remove(filepath.Join(dir, backups[i].name))
	}
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
