package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestOpen_EmptyPathRejected(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should return an error")
	}
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	first := Entry{
		RunID:         "run-1",
		MessageID:     "msg-1",
		Filename:      "export-a.csv",
		TotalRows:     10,
		DuplicateRows: 3,
		UniqueRows:    7,
		Uploaded:      true,
		ObjectKey:     "csv/year=2024/month=06/day=01/export-a_x.csv",
		ProcessedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	second := Entry{
		RunID:       "run-1",
		MessageID:   "msg-2",
		Filename:    "export-b.csv",
		TotalRows:   5,
		UniqueRows:  5,
		Uploaded:    false,
		ProcessedAt: time.Date(2024, 6, 1, 13, 0, 0, 0, time.UTC),
	}

	if err := j.Record(ctx, first); err != nil {
		t.Fatalf("Record(first) error = %v", err)
	}
	if err := j.Record(ctx, second); err != nil {
		t.Fatalf("Record(second) error = %v", err)
	}

	entries, err := j.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Recent() returned %d entries, want 2", len(entries))
	}

	// Newest first.
	if entries[0].Filename != "export-b.csv" {
		t.Errorf("entries[0].Filename = %q, want export-b.csv", entries[0].Filename)
	}

	got := entries[1]
	if got.MessageID != first.MessageID ||
		got.TotalRows != first.TotalRows ||
		got.DuplicateRows != first.DuplicateRows ||
		got.UniqueRows != first.UniqueRows ||
		got.Uploaded != first.Uploaded ||
		got.ObjectKey != first.ObjectKey {
		t.Errorf("round-tripped entry = %+v, want %+v", got, first)
	}
	if !got.ProcessedAt.Equal(first.ProcessedAt) {
		t.Errorf("ProcessedAt = %v, want %v", got.ProcessedAt, first.ProcessedAt)
	}
}

func TestJournal_RecentLimit(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := Entry{
			RunID:       "run-1",
			MessageID:   "msg",
			Filename:    "f.csv",
			ProcessedAt: time.Now().UTC(),
		}
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Recent(3) returned %d entries, want 3", len(entries))
	}
}

func TestJournal_Totals(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.Record(ctx, Entry{
		RunID: "r", MessageID: "m1", Filename: "a.csv",
		TotalRows: 10, DuplicateRows: 4, UniqueRows: 6,
		Uploaded: true, ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := j.Record(ctx, Entry{
		RunID: "r", MessageID: "m2", Filename: "b.csv",
		TotalRows: 3, DuplicateRows: 3, UniqueRows: 0,
		Uploaded: false, ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	totals, err := j.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}

	want := Totals{Files: 2, TotalRows: 13, DuplicateRows: 7, UniqueRows: 6, Uploads: 1}
	if totals != want {
		t.Errorf("Totals() = %+v, want %+v", totals, want)
	}
}

func TestJournal_TotalsEmpty(t *testing.T) {
	j := openTestJournal(t)

	totals, err := j.Totals(context.Background())
	if err != nil {
		t.Fatalf("Totals() error = %v", err)
	}
	if totals != (Totals{}) {
		t.Errorf("Totals() on empty journal = %+v, want zero value", totals)
	}
}

func TestJournal_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Record(context.Background(), Entry{
		RunID: "r", MessageID: "m", Filename: "a.csv", ProcessedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	j.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Recent() after reopen = %d entries, want 1", len(entries))
	}
}
