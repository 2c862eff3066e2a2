// Package logging provides the daemon's file logging with daily and
// size-based rotation.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultMaxBytes caps one log file before rolling over within the day.
const DefaultMaxBytes int64 = 100 << 20

// FileWriter writes to dated log files. A new file starts each UTC day, or
// earlier when the current file would exceed maxBytes. For a base path of
// logs/gateway.log the files are logs/gateway-2026-08-29.log,
// logs/gateway-2026-08-29-2.log and so on.
type FileWriter struct {
	basePath string
	maxBytes int64

	mu    sync.Mutex
	day   string
	seq   int
	file  *os.File
	size  int64
	clock func() time.Time
}

// NewFileWriter opens a rotating writer rooted at basePath. A basePath of
// "-" discards all output.
func NewFileWriter(basePath string, maxBytes int64) (io.WriteCloser, error) {
	if strings.TrimSpace(basePath) == "-" {
		return discardCloser{}, nil
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	w := &FileWriter{basePath: basePath, maxBytes: maxBytes, clock: time.Now}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(0); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.roll(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file. Further writes reopen it.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *FileWriter) roll(incoming int64) error {
	today := w.clock().UTC().Format("2006-01-02")
	switch {
	case w.file == nil || w.day != today:
		w.day = today
		w.seq = 1
	case w.size+incoming > w.maxBytes:
		w.seq++
	default:
		return nil
	}
	return w.open()
}

func (w *FileWriter) open() error {
	if w.file != nil {
		_ = w.file.Close()
	}
	dir := filepath.Dir(w.basePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: create dir %s: %w", dir, err)
	}

	name := filepath.Base(w.basePath)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".log"
	}
	dated := fmt.Sprintf("%s-%s%s", stem, w.day, ext)
	if w.seq > 1 {
		dated = fmt.Sprintf("%s-%s-%d%s", stem, w.day, w.seq, ext)
	}
	path := filepath.Join(dir, dated)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", path, err)
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}
	w.file = f
	w.size = size
	return nil
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }
