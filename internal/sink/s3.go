package sink

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/csvsift/csvsift/internal/observability"
)

// Client handles S3/MinIO operations for uploading processed CSV files.
type Client struct {
	client  *s3.Client
	config  Config
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a new S3 upload client. The metrics parameter is
// optional (pass nil to disable metric instrumentation).
func NewClient(ctx context.Context, cfg Config, metrics *observability.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3.AccessKeyID,
			cfg.S3.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3.Endpoint)
		o.UsePathStyle = cfg.S3.UsePathStyle
	})

	c := &Client{
		client:  client,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.UploadsPerSecond), 1),
		metrics: metrics,
		logger:  logger.With("component", "s3-sink"),
	}

	logger.Info("S3 sink created",
		"endpoint", cfg.S3.Endpoint,
		"bucket", cfg.S3.Bucket,
		"region", cfg.S3.Region,
		"uploads_per_second", cfg.UploadsPerSecond,
	)

	return c, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.S3.Bucket),
	})
	if err == nil {
		c.logger.Debug("bucket exists", "bucket", c.config.S3.Bucket)
		return nil
	}

	c.logger.Info("creating bucket", "bucket", c.config.S3.Bucket)
	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.config.S3.Bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	c.logger.Info("bucket created", "bucket", c.config.S3.Bucket)
	return nil
}

// Upload writes the CSV data under the given key, honoring the upload rate
// limit.
func (c *Client) Upload(ctx context.Context, key string, data []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.config.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	if c.metrics != nil {
		c.metrics.S3FilesUploaded.Add(ctx, 1)
		c.metrics.S3FileSize.Record(ctx, int64(len(data)))
	}

	c.logger.Debug("uploaded to S3",
		"key", key,
		"size_bytes", len(data),
	)

	return nil
}

// ObjectKey generates an S3 key for an attachment processed at time t.
// Format: {prefix}/year={y}/month={m}/day={d}/{stem}_{uuid}.csv.
func (c *Client) ObjectKey(filename string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf(
		"%s/year=%d/month=%02d/day=%02d/%s_%s.csv",
		c.config.S3.Prefix,
		t.Year(),
		int(t.Month()),
		t.Day(),
		sanitizeStem(filename),
		uuid.New().String(),
	)
}

// HealthCheck performs a health check on the S3 connection.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.config.S3.Bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}

	return nil
}

// sanitizeStem strips the extension and any path components from an
// attachment filename and replaces characters that are awkward in object
// keys. Empty filenames fall back to "attachment".
func sanitizeStem(filename string) string {
	stem := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	stem = strings.TrimSuffix(stem, path.Ext(stem))

	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	if b.Len() == 0 {
		return "attachment"
	}
	return b.String()
}
