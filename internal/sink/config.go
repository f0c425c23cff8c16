// Package sink uploads deduplicated CSV files to an S3-compatible object
// store, the cloud file-storage channel of the pipeline.
package sink

// Config holds upload sink configuration.
type Config struct {
	// S3 configuration
	S3 S3Config `envPrefix:"S3_"`

	// UploadsPerSecond caps the upload rate against the storage API
	UploadsPerSecond float64 `env:"UPLOADS_PER_SECOND" envDefault:"4"`
}

// S3Config holds S3/MinIO configuration.
type S3Config struct {
	// Endpoint is the S3 endpoint URL (e.g., "http://localhost:9000" for MinIO)
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:9000"`

	// Region is the AWS region
	Region string `env:"REGION" envDefault:"us-east-1"`

	// Bucket is the S3 bucket name
	Bucket string `env:"BUCKET" envDefault:"csvsift-files"`

	// AccessKeyID is the AWS access key ID
	AccessKeyID string `env:"ACCESS_KEY_ID" envDefault:"minioadmin"`

	// SecretAccessKey is the AWS secret access key
	SecretAccessKey string `env:"SECRET_ACCESS_KEY" envDefault:"minioadmin"`

	// UsePathStyle enables path-style addressing (required for MinIO)
	UsePathStyle bool `env:"USE_PATH_STYLE" envDefault:"true"`

	// Prefix is the key prefix for all objects
	Prefix string `env:"PREFIX" envDefault:"csv"`
}
