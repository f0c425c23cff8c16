package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/csvsift/csvsift/internal/observability"
)

// Report describes one processed attachment.
type Report struct {
	RunID         string    `json:"run_id"`
	MessageID     string    `json:"message_id"`
	Label         string    `json:"label"`
	TotalRows     int       `json:"total_rows"`
	DuplicateRows int       `json:"duplicate_rows"`
	UniqueRows    int       `json:"unique_rows"`
	Uploaded      bool      `json:"uploaded"`
	ObjectKey     string    `json:"object_key,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Publisher publishes processing reports to NATS JetStream.
type Publisher struct {
	js      jetstream.JetStream
	subject string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a report publisher. The metrics parameter is optional
// (pass nil to disable metric instrumentation).
func NewPublisher(js jetstream.JetStream, subject string, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		js:      js,
		subject: subject,
		metrics: metrics,
		logger:  logger.With("component", "report-publisher"),
	}
}

// Publish sends one report as a JSON message.
func (p *Publisher) Publish(ctx context.Context, r Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		p.countFailure(ctx)
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	ack, err := p.js.Publish(ctx, p.subject, data)
	if err != nil {
		p.countFailure(ctx)
		return fmt.Errorf("failed to publish report: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ReportsPublished.Add(ctx, 1)
	}

	p.logger.Debug("report published",
		"run_id", r.RunID,
		"label", r.Label,
		"subject", p.subject,
		"stream", ack.Stream,
		"sequence", ack.Sequence,
	)

	return nil
}

func (p *Publisher) countFailure(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.ReportFailures.Add(ctx, 1)
	}
}
