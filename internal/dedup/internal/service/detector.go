// Package service implements the duplicate row detector that wraps the
// fingerprint store domain with CSV handling, persistence, and metrics.
package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/csvsift/csvsift/internal/dedup/internal/domain"
	"github.com/csvsift/csvsift/internal/observability"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Result is the outcome of one detection call. ProcessedContent holds the
// deduplicated CSV (or the original bytes on passthrough) and RowHashes the
// fingerprints newly written to the store by this call.
type Result struct {
	TotalRows        int
	DuplicateRows    int
	UniqueRows       int
	HasDuplicates    bool
	ProcessedContent []byte
	RowHashes        []string
}

// Stats is a read-only snapshot of the detector state.
type Stats struct {
	Enabled           bool
	WindowMinutes     int
	TotalStoredHashes int
	ActiveHashes      int
	DataDir           string
}

// Detector detects duplicate rows across CSV attachments using a persisted,
// time-windowed fingerprint store. All methods are safe for concurrent use;
// a single mutex serializes the check-record-prune-persist sequence so
// interleaved calls cannot lose updates.
type Detector struct {
	enabled   bool
	dataDir   string
	storePath string
	metrics   *observability.Metrics
	logger    *slog.Logger

	mu    sync.Mutex
	store *domain.Store
	now   func() time.Time
}

// NewDetector creates a detector with the given window, creating dataDir if
// absent and loading any previously persisted fingerprints. Construction
// never fails: an unreadable or corrupt store file yields an empty store.
func NewDetector(
	window time.Duration,
	enabled bool,
	dataDir string,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Detector{
		enabled:   enabled,
		dataDir:   dataDir,
		storePath: storePath(dataDir),
		metrics:   metrics,
		logger:    logger,
		store:     domain.NewStore(window),
		now:       func() time.Time { return time.Now().UTC() },
	}

	ensureDataDir(dataDir, logger)
	d.store.Restore(loadEntries(d.storePath, logger))

	logger.Info("duplicate detector initialized",
		"enabled", enabled,
		"window", window,
		"stored_hashes", d.store.Len(),
		"data_dir", dataDir,
	)

	return d
}

// Detect parses the CSV content, removes rows whose fingerprint was seen
// within the detection window, records the remaining rows' fingerprints,
// and persists the updated store. It never returns an error: disabled
// detection, undecodable input, empty input, and parse failures all degrade
// to a passthrough result carrying the original bytes and zero counts.
//
// Rows are checked only against the store as it stood at call start, so two
// identical rows inside the same input are both retained; the repeat is
// suppressed on the next call instead.
func (d *Detector) Detect(content []byte, label string) Result {
	if !d.enabled {
		return passthrough(content)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	text, ok := decode(content)
	if !ok {
		d.logger.Warn("attachment is not valid UTF-8, passing through", "label", label)
		d.countPassthrough()
		return passthrough(content)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		d.logger.Warn("failed to parse CSV, passing through", "label", label, "error", err)
		d.countPassthrough()
		return passthrough(content)
	}

	if len(rows) == 0 {
		d.logger.Warn("empty CSV attachment", "label", label)
		return passthrough(content)
	}

	header := rows[0]
	dataRows := rows[1:]
	now := d.now()

	kept := make([][]string, 0, len(dataRows))
	newHashes := make([]string, 0, len(dataRows))
	recorded := make(map[string]struct{}, len(dataRows))
	duplicates := 0

	for _, row := range dataRows {
		hash := domain.Fingerprint(row, header)
		if d.store.Seen(hash, now) {
			duplicates++
			d.logger.Debug("duplicate row detected",
				"label", label,
				"row_hash", hash[:8],
			)
			continue
		}
		kept = append(kept, row)
		if _, ok := recorded[hash]; !ok {
			recorded[hash] = struct{}{}
			newHashes = append(newHashes, hash)
		}
	}

	processed, err := serialize(header, kept)
	if err != nil {
		d.logger.Warn("failed to serialize deduplicated CSV, passing through", "label", label, "error", err)
		d.countPassthrough()
		return passthrough(content)
	}

	for _, hash := range newHashes {
		d.store.Record(hash, now)
	}
	if pruned := d.store.Prune(now); pruned > 0 {
		d.logger.Debug("pruned expired row hashes", "count", pruned)
	}
	d.flush()

	if d.metrics != nil {
		ctx := context.Background()
		d.metrics.RowsProcessed.Add(ctx, int64(len(dataRows)))
		d.metrics.DuplicateRowsDropped.Add(ctx, int64(duplicates))
	}

	result := Result{
		TotalRows:        len(dataRows),
		DuplicateRows:    duplicates,
		UniqueRows:       len(kept),
		HasDuplicates:    duplicates > 0,
		ProcessedContent: processed,
		RowHashes:        newHashes,
	}

	d.logger.Info("duplicate detection completed",
		"label", label,
		"total_rows", result.TotalRows,
		"duplicate_rows", result.DuplicateRows,
		"unique_rows", result.UniqueRows,
	)

	return result
}

// Statistics returns a snapshot of the detector state. It does not prune
// or otherwise mutate the store.
func (d *Detector) Statistics() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	return Stats{
		Enabled:           d.enabled,
		WindowMinutes:     int(d.store.Window() / time.Minute),
		TotalStoredHashes: d.store.Len(),
		ActiveHashes:      d.store.ActiveCount(now),
		DataDir:           d.dataDir,
	}
}

// ClearCache empties the in-memory store and deletes the backing file if it
// exists.
func (d *Detector) ClearCache() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.store.Clear()
	if err := removeStore(d.storePath); err != nil {
		return err
	}

	d.logger.Info("cleared duplicate detection cache")
	return nil
}

// flush persists the store to disk. Write failures are logged and swallowed;
// the in-memory store stays authoritative even when not yet durable.
func (d *Detector) flush() {
	start := time.Now()
	if err := saveEntries(d.storePath, d.store.Snapshot()); err != nil {
		d.logger.Error("failed to persist row hashes", "error", err)
		return
	}
	if d.metrics != nil {
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		d.metrics.StoreFlushLatency.Record(context.Background(), elapsed)
	}
}

func (d *Detector) countPassthrough() {
	if d.metrics != nil {
		d.metrics.DetectPassthroughs.Add(context.Background(), 1)
	}
}

// decode strips a UTF-8 BOM if present and rejects content that is not
// valid UTF-8.
func decode(content []byte) (string, bool) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if !utf8.Valid(content) {
		return "", false
	}
	return string(content), true
}

// serialize writes the header and retained rows back out with standard CSV
// quoting.
func serialize(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func passthrough(content []byte) Result {
	return Result{
		ProcessedContent: content,
		RowHashes:        []string{},
	}
}
