// Package dedup provides duplicate row detection for CSV attachments. It
// maintains a persisted, time-windowed cache of previously seen row
// fingerprints and uses it to strip rows that reappear across overlapping
// log exports. Detection is an optimization layer: every failure degrades
// to passing the original bytes through unchanged, never to an error.
package dedup

import (
	"log/slog"
	"time"

	"github.com/csvsift/csvsift/internal/dedup/internal/service"
	"github.com/csvsift/csvsift/internal/observability"
)

// Config holds the duplicate detection configuration. It is immutable for
// the lifetime of a Module.
//
// Environment variable overrides:
//   - DEDUP_WINDOW_MINUTES: detection window in minutes (default: 15)
//   - DEDUP_ENABLED:        whether detection runs at all (default: true)
//   - DEDUP_DATA_DIR:       directory holding the fingerprint store (default: ./data)
type Config struct {
	WindowMinutes int    `env:"DEDUP_WINDOW_MINUTES" envDefault:"15"`
	Enabled       bool   `env:"DEDUP_ENABLED"        envDefault:"true"`
	DataDir       string `env:"DEDUP_DATA_DIR"       envDefault:"./data"`
}

// DefaultConfig returns the default detection configuration: a 15 minute
// window, detection enabled, and ./data as the store directory.
func DefaultConfig() Config {
	return Config{
		WindowMinutes: 15,
		Enabled:       true,
		DataDir:       "./data",
	}
}

// Result is the outcome of one detection call.
type Result = service.Result

// Stats is a read-only snapshot of detector state.
type Stats = service.Stats

// Module is the dedup module facade. It wraps the detector service and
// provides a clean API for integration with the rest of the pipeline.
type Module struct {
	det *service.Detector
}

// New creates a new dedup Module with the given configuration. The metrics
// parameter is optional (pass nil to disable metric instrumentation).
// Construction loads any previously persisted fingerprints and never fails;
// a missing or corrupt store file yields an empty store.
func New(cfg Config, metrics *observability.Metrics, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "dedup")

	return &Module{
		det: service.NewDetector(
			time.Duration(cfg.WindowMinutes)*time.Minute,
			cfg.Enabled,
			cfg.DataDir,
			metrics,
			logger,
		),
	}
}

// DetectDuplicateRows deduplicates the given CSV content against rows seen
// within the detection window. The label is used for logging only. It
// always returns a Result and never an error; see service.Detector.Detect
// for the passthrough rules.
func (m *Module) DetectDuplicateRows(content []byte, label string) Result {
	return m.det.Detect(content, label)
}

// Statistics returns a snapshot of the detector state without mutating it.
func (m *Module) Statistics() Stats {
	return m.det.Statistics()
}

// ClearCache empties the fingerprint store and deletes its backing file.
func (m *Module) ClearCache() error {
	return m.det.ClearCache()
}
