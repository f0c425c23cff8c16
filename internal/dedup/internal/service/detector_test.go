// Package service tests the duplicate row detector against the persisted
// fingerprint store.
package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/csvsift/csvsift/internal/observability"
)

const sampleCSV = "timestamp,event,value\n" +
	"2024-01-01T10:00:00,login,u1\n" +
	"2024-01-01T10:01:00,logout,u1\n" +
	"2024-01-01T10:01:00,logout,u1\n"

// newTestDetector creates an enabled detector backed by a temp directory.
func newTestDetector(t *testing.T, window time.Duration) *Detector {
	t.Helper()
	return NewDetector(window, true, t.TempDir(), nil, nil)
}

func createTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	m, err := observability.NewMetrics(meter)
	if err != nil {
		t.Fatalf("failed to create test metrics: %v", err)
	}
	return m
}

func countDataRows(t *testing.T, content []byte) int {
	t.Helper()
	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return 0
	}
	return len(lines) - 1
}

func TestDetector_FirstCallKeepsAllRows(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	res := d.Detect([]byte(sampleCSV), "export-1.csv")

	if res.TotalRows != 3 || res.DuplicateRows != 0 || res.UniqueRows != 3 {
		t.Errorf("got total=%d dup=%d unique=%d, want 3/0/3",
			res.TotalRows, res.DuplicateRows, res.UniqueRows)
	}
	if res.HasDuplicates {
		t.Error("HasDuplicates = true on first call, want false")
	}
	// The two identical rows in the same input are both retained: rows are
	// checked only against the store as it stood at call start.
	if got := countDataRows(t, res.ProcessedContent); got != 3 {
		t.Errorf("processed content has %d data rows, want 3", got)
	}
	// Identical rows share a fingerprint, so only 2 new hashes are written.
	if len(res.RowHashes) != 2 {
		t.Errorf("RowHashes = %d entries, want 2", len(res.RowHashes))
	}
}

func TestDetector_SecondCallDropsAllRows(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	d.Detect([]byte(sampleCSV), "export-1.csv")
	res := d.Detect([]byte(sampleCSV), "export-2.csv")

	if res.TotalRows != 3 || res.DuplicateRows != 3 || res.UniqueRows != 0 {
		t.Errorf("got total=%d dup=%d unique=%d, want 3/3/0",
			res.TotalRows, res.DuplicateRows, res.UniqueRows)
	}
	if !res.HasDuplicates {
		t.Error("HasDuplicates = false on repeat call, want true")
	}
	if got := countDataRows(t, res.ProcessedContent); got != 0 {
		t.Errorf("processed content has %d data rows, want 0 (header only)", got)
	}
	if len(res.RowHashes) != 0 {
		t.Errorf("RowHashes = %d entries on repeat call, want 0", len(res.RowHashes))
	}
}

func TestDetector_TimestampOnlyChangeIsDuplicate(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	d.Detect([]byte("timestamp,event,value\n2024-01-01T10:00:00,login,u1\n"), "a.csv")
	res := d.Detect([]byte("timestamp,event,value\n2024-01-01T10:00:59,login,u1\n"), "b.csv")

	if res.DuplicateRows != 1 {
		t.Errorf("DuplicateRows = %d, want 1: timestamp-only changes must not defeat detection", res.DuplicateRows)
	}
}

func TestDetector_AccountingIdentity(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	d.Detect([]byte("event,value\nlogin,u1\n"), "a.csv")
	res := d.Detect([]byte("event,value\nlogin,u1\nlogout,u2\nsignup,u3\n"), "b.csv")

	if res.TotalRows != res.DuplicateRows+res.UniqueRows {
		t.Errorf("total=%d != dup=%d + unique=%d", res.TotalRows, res.DuplicateRows, res.UniqueRows)
	}
	if got := countDataRows(t, res.ProcessedContent); got != res.UniqueRows {
		t.Errorf("processed content has %d data rows, want UniqueRows=%d", got, res.UniqueRows)
	}
}

func TestDetector_EmptyInputPassthrough(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	res := d.Detect([]byte{}, "empty.csv")

	if res.TotalRows != 0 || res.HasDuplicates {
		t.Errorf("got total=%d hasDup=%v, want 0/false", res.TotalRows, res.HasDuplicates)
	}
	if !bytes.Equal(res.ProcessedContent, []byte{}) {
		t.Error("empty input should pass through unchanged")
	}
}

func TestDetector_DisabledPassthrough(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(15*time.Minute, false, dir, nil, nil)

	input := []byte(sampleCSV)
	res := d.Detect(input, "export.csv")

	if !bytes.Equal(res.ProcessedContent, input) {
		t.Error("disabled detector must return input bytes exactly")
	}
	if res.TotalRows != 0 || res.DuplicateRows != 0 || res.UniqueRows != 0 || res.HasDuplicates {
		t.Error("disabled detector must report zero counts")
	}
	if _, err := os.Stat(filepath.Join(dir, storeFileName)); !os.IsNotExist(err) {
		t.Error("disabled detector must not write the store file")
	}
}

func TestDetector_InvalidUTF8Passthrough(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	input := []byte{'a', ',', 'b', '\n', 0xFF, 0xFE, ',', 'x', '\n'}
	res := d.Detect(input, "binary.csv")

	if !bytes.Equal(res.ProcessedContent, input) {
		t.Error("non-UTF-8 input should pass through unchanged")
	}
	if res.TotalRows != 0 || res.HasDuplicates {
		t.Error("non-UTF-8 input should report zero counts")
	}
}

func TestDetector_MalformedCSVPassthrough(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	input := []byte("event,value\n\"unterminated,u1\n")
	res := d.Detect(input, "broken.csv")

	if !bytes.Equal(res.ProcessedContent, input) {
		t.Error("unparseable CSV should pass through unchanged")
	}
	if res.TotalRows != 0 {
		t.Errorf("TotalRows = %d for unparseable CSV, want 0", res.TotalRows)
	}
}

func TestDetector_StripsUTF8BOM(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("event,value\nlogin,u1\n")...)
	d.Detect(withBOM, "bom.csv")

	// The same content without a BOM must hit the stored fingerprints.
	res := d.Detect([]byte("event,value\nlogin,u1\n"), "plain.csv")
	if res.DuplicateRows != 1 {
		t.Errorf("DuplicateRows = %d, want 1: BOM must be stripped before hashing", res.DuplicateRows)
	}
}

func TestDetector_WindowExpiry(t *testing.T) {
	d := newTestDetector(t, 15*time.Minute)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }

	d.Detect([]byte("event,value\nlogin,u1\n"), "a.csv")

	// Within the window: duplicate.
	d.now = func() time.Time { return base.Add(10 * time.Minute) }
	res := d.Detect([]byte("event,value\nlogin,u1\n"), "b.csv")
	if res.DuplicateRows != 1 {
		t.Errorf("within window: DuplicateRows = %d, want 1", res.DuplicateRows)
	}

	// Past the window: the row is retained and its timestamp refreshed.
	d.now = func() time.Time { return base.Add(40 * time.Minute) }
	res = d.Detect([]byte("event,value\nlogin,u1\n"), "c.csv")
	if res.DuplicateRows != 0 || res.UniqueRows != 1 {
		t.Errorf("past window: got dup=%d unique=%d, want 0/1", res.DuplicateRows, res.UniqueRows)
	}

	// Immediately after the refresh it is a duplicate again.
	d.now = func() time.Time { return base.Add(41 * time.Minute) }
	res = d.Detect([]byte("event,value\nlogin,u1\n"), "d.csv")
	if res.DuplicateRows != 1 {
		t.Errorf("after refresh: DuplicateRows = %d, want 1", res.DuplicateRows)
	}
}

func TestDetector_StoreSurvivesReconstruction(t *testing.T) {
	dir := t.TempDir()

	first := NewDetector(15*time.Minute, true, dir, nil, nil)
	first.Detect([]byte("event,value\nlogin,u1\n"), "a.csv")

	second := NewDetector(15*time.Minute, true, dir, nil, nil)
	res := second.Detect([]byte("event,value\nlogin,u1\n"), "b.csv")

	if res.DuplicateRows != 1 {
		t.Errorf("DuplicateRows = %d after reconstruction, want 1: store must persist across restarts", res.DuplicateRows)
	}
}

func TestDetector_CorruptStoreFileStartsFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, storeFileName), []byte("not json{"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt store file: %v", err)
	}

	d := NewDetector(15*time.Minute, true, dir, nil, nil)

	stats := d.Statistics()
	if stats.TotalStoredHashes != 0 {
		t.Errorf("TotalStoredHashes = %d with corrupt store file, want 0", stats.TotalStoredHashes)
	}

	// Detection still works from the empty store.
	res := d.Detect([]byte("event,value\nlogin,u1\n"), "a.csv")
	if res.UniqueRows != 1 {
		t.Errorf("UniqueRows = %d, want 1", res.UniqueRows)
	}
}

func TestDetector_UnparseableTimestampsDropped(t *testing.T) {
	dir := t.TempDir()
	content := `{"aaaa": "not-a-time", "bbbb": "2024-06-01T12:00:00Z"}`
	if err := os.WriteFile(filepath.Join(dir, storeFileName), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to seed store file: %v", err)
	}

	d := NewDetector(15*time.Minute, true, dir, nil, nil)

	if got := d.Statistics().TotalStoredHashes; got != 1 {
		t.Errorf("TotalStoredHashes = %d, want 1 (entry with bad timestamp dropped)", got)
	}
}

func TestDetector_ClearCache(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(15*time.Minute, true, dir, nil, nil)

	d.Detect([]byte(sampleCSV), "a.csv")
	if d.Statistics().TotalStoredHashes == 0 {
		t.Fatal("expected stored hashes before ClearCache")
	}

	if err := d.ClearCache(); err != nil {
		t.Fatalf("ClearCache() error = %v", err)
	}

	if got := d.Statistics().TotalStoredHashes; got != 0 {
		t.Errorf("TotalStoredHashes = %d after ClearCache, want 0", got)
	}
	if _, err := os.Stat(filepath.Join(dir, storeFileName)); !os.IsNotExist(err) {
		t.Error("backing file should be deleted by ClearCache")
	}

	// Clearing again with no backing file is not an error.
	if err := d.ClearCache(); err != nil {
		t.Errorf("second ClearCache() error = %v", err)
	}
}

func TestDetector_Statistics(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(15*time.Minute, true, dir, nil, nil)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return base }
	d.Detect([]byte("event,value\nlogin,u1\nlogout,u2\n"), "a.csv")

	stats := d.Statistics()
	if !stats.Enabled {
		t.Error("Enabled = false, want true")
	}
	if stats.WindowMinutes != 15 {
		t.Errorf("WindowMinutes = %d, want 15", stats.WindowMinutes)
	}
	if stats.TotalStoredHashes != 2 || stats.ActiveHashes != 2 {
		t.Errorf("stored=%d active=%d, want 2/2", stats.TotalStoredHashes, stats.ActiveHashes)
	}
	if stats.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", stats.DataDir, dir)
	}

	// Entries past the window count as stored but not active; Statistics
	// itself must not prune them.
	d.now = func() time.Time { return base.Add(time.Hour) }
	stats = d.Statistics()
	if stats.TotalStoredHashes != 2 || stats.ActiveHashes != 0 {
		t.Errorf("stored=%d active=%d after expiry, want 2/0", stats.TotalStoredHashes, stats.ActiveHashes)
	}
}

// mockMetricCounter implements a simple counter for testing.
type mockMetricCounter struct {
	metric.Int64Counter
	count atomic.Int64
}

func (m *mockMetricCounter) Add(_ context.Context, incr int64, _ ...metric.AddOption) {
	m.count.Add(incr)
}

func TestDetector_MetricsIncremented(t *testing.T) {
	metrics := createTestMetrics(t)
	rows := &mockMetricCounter{}
	dropped := &mockMetricCounter{}
	metrics.RowsProcessed = rows
	metrics.DuplicateRowsDropped = dropped

	d := NewDetector(15*time.Minute, true, t.TempDir(), metrics, nil)

	d.Detect([]byte(sampleCSV), "a.csv")
	if rows.count.Load() != 3 || dropped.count.Load() != 0 {
		t.Errorf("after first call: rows=%d dropped=%d, want 3/0", rows.count.Load(), dropped.count.Load())
	}

	d.Detect([]byte(sampleCSV), "b.csv")
	if rows.count.Load() != 6 || dropped.count.Load() != 3 {
		t.Errorf("after second call: rows=%d dropped=%d, want 6/3", rows.count.Load(), dropped.count.Load())
	}
}
