// Package report publishes per-attachment processing reports to NATS
// JetStream so downstream consumers (dashboards, alerting) can observe the
// pipeline without polling the journal.
package report

import (
	"time"
)

// Config holds NATS connection and stream configuration for report
// publishing.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222")
	URL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	// Name is the client connection name for monitoring
	Name string `env:"NATS_CLIENT_NAME" envDefault:"csvsift"`

	// MaxReconnects is the maximum number of reconnection attempts
	MaxReconnects int `env:"NATS_MAX_RECONNECTS" envDefault:"60"`

	// ReconnectWait is the time to wait between reconnection attempts
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`

	// Timeout is the connection timeout
	Timeout time.Duration `env:"NATS_TIMEOUT" envDefault:"5s"`

	// Stream is the JetStream stream name for reports
	Stream string `env:"NATS_STREAM" envDefault:"CSVSIFT_REPORTS"`

	// Subject is the subject reports are published to
	Subject string `env:"NATS_SUBJECT" envDefault:"csvsift.reports.processed"`

	// MaxAge is the maximum age of report messages in the stream
	MaxAge time.Duration `env:"NATS_STREAM_MAX_AGE" envDefault:"168h"` // 7 days
}
