package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments used across the pipeline.
// Instruments are created once at startup and shared with the detector,
// sink, and reporting components.
type Metrics struct {
	// Duplicate detection metrics
	RowsProcessed        otelmetric.Int64Counter
	DuplicateRowsDropped otelmetric.Int64Counter
	DetectPassthroughs   otelmetric.Int64Counter
	StoreFlushLatency    otelmetric.Float64Histogram

	// Attachment pipeline metrics
	FilesProcessed otelmetric.Int64Counter
	FilesSkipped   otelmetric.Int64Counter

	// S3 / upload metrics
	S3FilesUploaded otelmetric.Int64Counter
	S3FileSize      otelmetric.Int64Histogram

	// Report publishing metrics
	ReportsPublished otelmetric.Int64Counter
	ReportFailures   otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter.
// Each instrument is created with a descriptive name, unit, and description
// following OpenTelemetry semantic conventions.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	// Duplicate detection metrics
	m.RowsProcessed, err = meter.Int64Counter(
		"dedup.rows.processed",
		otelmetric.WithDescription("CSV data rows examined by the duplicate detector"),
	)
	if err != nil {
		return nil, err
	}

	m.DuplicateRowsDropped, err = meter.Int64Counter(
		"dedup.rows.dropped",
		otelmetric.WithDescription("Duplicate CSV rows removed from output"),
	)
	if err != nil {
		return nil, err
	}

	m.DetectPassthroughs, err = meter.Int64Counter(
		"dedup.passthroughs",
		otelmetric.WithDescription("Detection calls degraded to passthrough (parse or decode failure)"),
	)
	if err != nil {
		return nil, err
	}

	m.StoreFlushLatency, err = meter.Float64Histogram(
		"dedup.store.flush.latency",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Fingerprint store flush latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	// Attachment pipeline metrics
	m.FilesProcessed, err = meter.Int64Counter(
		"pipeline.files.processed",
		otelmetric.WithDescription("CSV attachments processed end to end"),
	)
	if err != nil {
		return nil, err
	}

	m.FilesSkipped, err = meter.Int64Counter(
		"pipeline.files.skipped",
		otelmetric.WithDescription("Attachments skipped (message already tracked or nothing unique to upload)"),
	)
	if err != nil {
		return nil, err
	}

	// S3 / upload metrics
	m.S3FilesUploaded, err = meter.Int64Counter(
		"s3.files.uploaded",
		otelmetric.WithDescription("CSV files uploaded to S3"),
	)
	if err != nil {
		return nil, err
	}

	m.S3FileSize, err = meter.Int64Histogram(
		"s3.file.size",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Uploaded file sizes in bytes"),
	)
	if err != nil {
		return nil, err
	}

	// Report publishing metrics
	m.ReportsPublished, err = meter.Int64Counter(
		"reports.published",
		otelmetric.WithDescription("Processing reports published to NATS"),
	)
	if err != nil {
		return nil, err
	}

	m.ReportFailures, err = meter.Int64Counter(
		"reports.failures",
		otelmetric.WithDescription("Processing report publish failures"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
