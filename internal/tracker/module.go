// Package tracker remembers which mail messages have already been handled
// so the polling collaborator can skip their attachments on later cycles.
// It uses a sliding window bloom filter: a false positive can only cause an
// already-uploaded message to be skipped again, which is safe here, and in
// exchange the memory footprint stays fixed regardless of mailbox volume.
package tracker

import (
	"context"
	"log/slog"
	"time"
)

// Config holds the message tracker configuration.
//
// Environment variable overrides:
//   - TRACKER_WINDOW:   sliding window duration (default: 24h)
//   - TRACKER_CAPACITY: expected messages per window (default: 100000)
//   - TRACKER_FP_RATE:  bloom filter false positive rate (default: 0.0001)
type Config struct {
	Window   time.Duration `env:"TRACKER_WINDOW"   envDefault:"24h"`
	Capacity uint          `env:"TRACKER_CAPACITY" envDefault:"100000"`
	FPRate   float64       `env:"TRACKER_FP_RATE"  envDefault:"0.0001"`
}

// DefaultConfig returns the default tracker configuration with a 24 hour
// window, 100k message capacity, and 0.01% false positive rate.
func DefaultConfig() Config {
	return Config{
		Window:   24 * time.Hour,
		Capacity: 100_000,
		FPRate:   0.0001,
	}
}

// Module is the message tracker facade.
type Module struct {
	filter *seenFilter
	logger *slog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a new tracker Module with the given configuration.
func New(cfg Config, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "tracker")

	return &Module{
		filter: newSeenFilter(cfg.Window, cfg.Capacity, cfg.FPRate),
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Seen reports whether the message ID was already handled within the
// tracking window, adding it on first sight. Empty IDs always return false
// (messages without IDs are never skipped).
func (m *Module) Seen(messageID string) bool {
	if messageID == "" {
		return false
	}
	if m.filter.seen(messageID) {
		m.logger.Debug("message already tracked", "message_id", messageID)
		return true
	}
	return false
}

// Start launches the background goroutine that rotates the bloom filter
// every window/2 to maintain the sliding window. The goroutine stops when
// ctx is cancelled or Stop is called.
func (m *Module) Start(ctx context.Context) {
	rotateInterval := m.filter.window / 2
	m.logger.Info("message tracker started",
		"window", m.filter.window,
		"rotate_interval", rotateInterval,
	)

	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(rotateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.filter.rotate()
				m.logger.Debug("tracker filter rotated")
			case <-ctx.Done():
				m.logger.Info("message tracker stopping (context cancelled)")
				return
			case <-m.stopCh:
				m.logger.Info("message tracker stopping (stop requested)")
				return
			}
		}
	}()
}

// Stop signals the rotation goroutine to stop and waits for it to finish.
func (m *Module) Stop() {
	close(m.stopCh)
	<-m.doneCh
}
