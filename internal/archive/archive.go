// Package archive uploads finished engine reports to S3-compatible object
// storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Config holds the object storage settings.
type Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// Uploader is the subset of manager.Uploader the archiver needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// NewS3Uploader builds a multipart uploader for the configured endpoint.
// Static credentials are used when both keys are set; otherwise the default
// credential chain applies. A custom endpoint implies path-style addressing.
func NewS3Uploader(ctx context.Context, cfg Config) (*manager.Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts = append(opts, awsconfig.WithRegion(region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load object storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return manager.NewUploader(client), nil
}

// Kind is the report family, used as the first key segment.
type Kind string

const (
	KindOptimization Kind = "optimization"
	KindStressTest   Kind = "stress-test"
)

// Archiver writes reports as JSON objects. Uploads submitted with Submit run
// in the background; Close waits for them.
type Archiver struct {
	uploader Uploader
	bucket   string
	prefix   string
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// New creates an archiver writing to bucket.
func New(uploader Uploader, cfg Config, log zerolog.Logger) *Archiver {
	return &Archiver{
		uploader: uploader,
		bucket:   cfg.Bucket,
		prefix:   strings.Trim(cfg.Prefix, "/"),
		timeout:  time.Minute,
		log:      log.With().Str("component", "archive").Logger(),
		now:      time.Now,
	}
}

// ObjectKey returns <prefix>/<kind>/<yyyy>/<mm>/<dd>/<portfolio>/<run>.json.
func (a *Archiver) ObjectKey(kind Kind, portfolioID, runID string, at time.Time) string {
	at = at.UTC()
	parts := []string{
		string(kind),
		at.Format("2006"), at.Format("01"), at.Format("02"),
		portfolioID,
		runID + ".json",
	}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return path.Join(parts...)
}

// Archive uploads report synchronously and returns the object key.
func (a *Archiver) Archive(ctx context.Context, kind Kind, portfolioID, runID string, report any) (string, error) {
	body, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s report: %w", kind, err)
	}

	key := a.ObjectKey(kind, portfolioID, runID, a.now())
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"portfolio-id": portfolioID,
			"run-id":       runID,
			"kind":         string(kind),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.log.Debug().Str("key", key).Int("bytes", len(body)).Msg("Report archived")
	return key, nil
}

// Submit archives report in the background. Failures are logged only. A nil
// archiver discards the report.
func (a *Archiver) Submit(kind Kind, portfolioID, runID string, report any) {
	if a == nil {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.Archive(ctx, kind, portfolioID, runID, report); err != nil {
			a.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to archive report")
		}
	}()
}

// Close waits for submitted uploads to finish.
func (a *Archiver) Close() {
	if a == nil {
		return
	}
	a.wg.Wait()
}
