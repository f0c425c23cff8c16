// Package pipeline orchestrates the handling of one downloaded CSV
// attachment: skip messages already tracked, strip duplicate rows, upload
// what remains, and record the outcome in the journal and on the report
// stream.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/csvsift/csvsift/internal/dedup"
	"github.com/csvsift/csvsift/internal/journal"
	"github.com/csvsift/csvsift/internal/observability"
	"github.com/csvsift/csvsift/internal/report"
	"github.com/csvsift/csvsift/internal/tracker"
)

// Attachment is one CSV file handed over by the download collaborator.
type Attachment struct {
	MessageID string
	Filename  string
	Content   []byte
}

// Outcome describes what the pipeline did with an attachment.
type Outcome struct {
	Skipped   bool
	Uploaded  bool
	ObjectKey string
	Detection dedup.Result
}

// Uploader stores processed CSV bytes in the file-storage channel.
// Satisfied by sink.Client.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte) error
	ObjectKey(filename string, t time.Time) string
}

// Reporter publishes processing reports. Satisfied by report.Publisher.
type Reporter interface {
	Publish(ctx context.Context, r report.Report) error
}

// Processor runs attachments through the detection-upload-accounting
// sequence. The tracker, journal, and reporter are optional; the detector
// and uploader are required.
type Processor struct {
	runID    string
	detector *dedup.Module
	tracker  *tracker.Module
	journal  *journal.Journal
	uploader Uploader
	reporter Reporter
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor wires a processor for one polling run. A fresh run ID is
// generated per processor and stamped on every journal entry and report.
func NewProcessor(
	detector *dedup.Module,
	msgTracker *tracker.Module,
	jnl *journal.Journal,
	uploader Uploader,
	reporter Reporter,
	metrics *observability.Metrics,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{
		runID:    uuid.New().String(),
		detector: detector,
		tracker:  msgTracker,
		journal:  jnl,
		uploader: uploader,
		reporter: reporter,
		metrics:  metrics,
		logger:   logger.With("module", "pipeline"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunID returns the identifier stamped on this processor's journal entries
// and reports.
func (p *Processor) RunID() string {
	return p.runID
}

// Process handles one attachment. Duplicate detection never fails the call;
// journal and report failures are logged and swallowed. Only upload errors
// propagate, since delivery is the pipeline's primary obligation.
func (p *Processor) Process(ctx context.Context, att Attachment) (Outcome, error) {
	if p.tracker != nil && p.tracker.Seen(att.MessageID) {
		p.logger.Info("skipping attachment from tracked message",
			"message_id", att.MessageID,
			"filename", att.Filename,
		)
		p.countSkipped(ctx)
		return Outcome{Skipped: true}, nil
	}

	res := p.detector.DetectDuplicateRows(att.Content, att.Filename)
	outcome := Outcome{Detection: res}

	// All data rows were duplicates: nothing worth delivering. A passthrough
	// result (TotalRows == 0) still gets uploaded, since detection is an
	// optimization that must not block delivery.
	if res.TotalRows > 0 && res.UniqueRows == 0 {
		p.logger.Info("attachment contained only duplicate rows, skipping upload",
			"filename", att.Filename,
			"duplicate_rows", res.DuplicateRows,
		)
		p.countSkipped(ctx)
		p.account(ctx, att, outcome)
		return outcome, nil
	}

	content := att.Content
	if res.HasDuplicates {
		content = res.ProcessedContent
	}

	key := p.uploader.ObjectKey(att.Filename, p.now())
	if err := p.uploader.Upload(ctx, key, content); err != nil {
		return outcome, fmt.Errorf("upload %s: %w", att.Filename, err)
	}
	outcome.Uploaded = true
	outcome.ObjectKey = key

	if p.metrics != nil {
		p.metrics.FilesProcessed.Add(ctx, 1)
	}

	p.logger.Info("attachment processed",
		"filename", att.Filename,
		"message_id", att.MessageID,
		"total_rows", res.TotalRows,
		"duplicate_rows", res.DuplicateRows,
		"unique_rows", res.UniqueRows,
		"object_key", key,
	)

	p.account(ctx, att, outcome)
	return outcome, nil
}

// account records the outcome in the journal and on the report stream.
// Both are best-effort.
func (p *Processor) account(ctx context.Context, att Attachment, outcome Outcome) {
	now := p.now()

	if p.journal != nil {
		entry := journal.Entry{
			RunID:         p.runID,
			MessageID:     att.MessageID,
			Filename:      att.Filename,
			TotalRows:     outcome.Detection.TotalRows,
			DuplicateRows: outcome.Detection.DuplicateRows,
			UniqueRows:    outcome.Detection.UniqueRows,
			Uploaded:      outcome.Uploaded,
			ObjectKey:     outcome.ObjectKey,
			ProcessedAt:   now,
		}
		if err := p.journal.Record(ctx, entry); err != nil {
			p.logger.Error("failed to record journal entry", "filename", att.Filename, "error", err)
		}
	}

	if p.reporter != nil {
		r := report.Report{
			RunID:         p.runID,
			MessageID:     att.MessageID,
			Label:         att.Filename,
			TotalRows:     outcome.Detection.TotalRows,
			DuplicateRows: outcome.Detection.DuplicateRows,
			UniqueRows:    outcome.Detection.UniqueRows,
			Uploaded:      outcome.Uploaded,
			ObjectKey:     outcome.ObjectKey,
			ProcessedAt:   now,
		}
		if err := p.reporter.Publish(ctx, r); err != nil {
			p.logger.Error("failed to publish report", "filename", att.Filename, "error", err)
		}
	}
}

func (p *Processor) countSkipped(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.FilesSkipped.Add(ctx, 1)
	}
}
