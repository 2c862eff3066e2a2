package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileWriterCreatesDatedFile(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(filepath.Join(dir, "gateway.log"), 0)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, "gateway-"+today+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("dated file missing: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestFileWriterRollsOverOnSize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(filepath.Join(dir, "gateway.log"), 10)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("123456789\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := w.Write([]byte("overflow\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 files after rollover, got %v", names)
	}
	found := false
	for _, n := range names {
		if strings.HasSuffix(n, "-2.log") {
			found = true
		}
	}
	if !found {
		t.Fatalf("rollover file missing: %v", names)
	}
}

func TestFileWriterDiscard(t *testing.T) {
	w, err := NewFileWriter("-", 0)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	if n, err := w.Write([]byte("gone")); err != nil || n != 4 {
		t.Fatalf("discard write: n=%d err=%v", n, err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
