package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const defaultMaxLogSize = 2 * 1024 * 1024 // 2MB

// Levels in ascending severity. SetLevel drops everything below the
// configured threshold; plain log.Printf output is never filtered.
const (
	levelDebug int32 = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[string]int32{
	"debug": levelDebug,
	"info":  levelInfo,
	"warn":  levelWarn,
	"error": levelError,
}

var minLevel atomic.Int32

func init() {
	minLevel.Store(levelInfo)
}

// SetLevel applies the configured LOG_LEVEL. Unknown names keep the
// current threshold.
func SetLevel(name string) {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		minLevel.Store(lvl)
	}
}

func Debugf(format string, args ...any) { logf(levelDebug, "debug", format, args...) }
func Infof(format string, args ...any)  { logf(levelInfo, "info", format, args...) }
func Warnf(format string, args ...any)  { logf(levelWarn, "warn", format, args...) }
func Errorf(format string, args ...any) { logf(levelError, "error", format, args...) }

// Logf routes a message by level name; unknown names log at info.
func Logf(level, format string, args ...any) {
	lvl, ok := levelNames[level]
	if !ok {
		level = "info"
		lvl = levelInfo
	}
	logf(lvl, level, format, args...)
}

func logf(lvl int32, name, format string, args ...any) {
	if lvl < minLevel.Load() {
		return
	}
	log.Output(3, fmt.Sprintf("["+name+"] "+format, args...))
}

// RotatingWriter mirrors log output to a size-capped file, keeping one
// backup generation.
type RotatingWriter struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	size    int64
	maxSize int64
}

func Setup(logPath string) (*RotatingWriter, error) {
	// Truncate if too large on startup
	if info, err := os.Stat(logPath); err == nil && info.Size() > defaultMaxLogSize {
		os.Truncate(logPath, 0)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	var size int64
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	rw := &RotatingWriter{
		file:    f,
		path:    logPath,
		size:    size,
		maxSize: defaultMaxLogSize,
	}

	log.SetOutput(io.MultiWriter(os.Stdout, rw))

	return rw, nil
}

func (w *RotatingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err = w.file.Write(p)
	w.size += int64(n)

	if w.size > w.maxSize {
		w.rotate()
	}

	return n, err
}

func (w *RotatingWriter) rotate() {
	w.file.Close()

	// Keep one backup
	os.Rename(w.path, w.path+".1")

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return
	}

	w.file = f
	w.size = 0
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
