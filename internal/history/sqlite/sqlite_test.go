package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/strandlabs/hairstyle-gateway/internal/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateStartsProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", "  short pink hair  ", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatalf("expected non-empty id")
	}

	records, err := store.ListRecent(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Status != history.StatusProcessing {
		t.Fatalf("expected processing, got %s", r.Status)
	}
	if r.Prompt != "short pink hair" {
		t.Fatalf("expected trimmed prompt, got %q", r.Prompt)
	}
	if r.CompletedAt != nil {
		t.Fatalf("expected no completion time yet")
	}
}

func TestMarkCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", "silver pixie", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.MarkCompleted(ctx, id, "wavespeed", 4321); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	records, err := store.ListRecent(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	r := records[0]
	if r.Status != history.StatusCompleted || r.Provider != "wavespeed" || r.ProcessingTimeMs != 4321 {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.CompletedAt == nil {
		t.Fatalf("expected completion time")
	}
}

func TestTerminalStateWrittenOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", "curly red bob", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.MarkFailed(ctx, id, "provider exploded"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	// A late completion must not overwrite the terminal state.
	if err := store.MarkCompleted(ctx, id, "gemini", 99); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	records, err := store.ListRecent(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if records[0].Status != history.StatusFailed {
		t.Fatalf("expected failed to stick, got %s", records[0].Status)
	}
	if records[0].ErrorMessage != "provider exploded" {
		t.Fatalf("unexpected error message %q", records[0].ErrorMessage)
	}
}

func TestMarkFailedTruncatesMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, "u1", "braids", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	long := strings.Repeat("x", history.ErrorMessageMaxLen+100)
	if err := store.MarkFailed(ctx, id, long); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	records, err := store.ListRecent(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if got := len(records[0].ErrorMessage); got != history.ErrorMessageMaxLen {
		t.Fatalf("expected %d byte message, got %d", history.ErrorMessageMaxLen, got)
	}
}

func TestListStaleProcessing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	stale, err := store.Create(ctx, "u1", "old one", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	done, err := store.Create(ctx, "u1", "finished", 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.MarkCompleted(ctx, done, "wavespeed", 10); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	records, err := store.ListStaleProcessing(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ListStaleProcessing: %v", err)
	}
	if len(records) != 1 || records[0].ID != stale {
		t.Fatalf("expected only the stale processing record, got %+v", records)
	}

	records, err = store.ListStaleProcessing(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ListStaleProcessing: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records before cutoff, got %d", len(records))
	}
}
