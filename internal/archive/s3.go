// Package archive copies expired sessions to S3-compatible object storage
// (Cloudflare R2, AWS S3, MinIO) before cleanup deletes them.
//
// Objects are written as the session's JSON under
//
//	{prefix}/{YYYY-MM-DD}/{sessionId}.json
//
// where the date is the day of archiving in UTC.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cvperfect/SessionService/internal/models"
	"github.com/cvperfect/SessionService/pkg/config"
	"github.com/cvperfect/SessionService/pkg/utils"
	"github.com/rs/zerolog/log"
)

// s3API is the subset of *s3.Client the archiver uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Archiver implements services.Archiver on an S3 bucket.
type S3Archiver struct {
	client s3API
	bucket string
	prefix string
	retry  utils.RetryConfig
	now    func() time.Time
}

// NewS3Archiver builds an S3 client from static credentials. Endpoint is
// optional and selects an S3-compatible service such as R2
// ("https://<account>.r2.cloudflarestorage.com").
//
// Example:
//
//	archiver, err := archive.NewS3Archiver(ctx, &cfg.Archive)
//	if err != nil {
//	    log.Fatal().Err(err).Msg("Archive configuration failed")
//	}
func NewS3Archiver(ctx context.Context, cfg *config.ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load archive credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	log.Info().
		Str("bucket", cfg.Bucket).
		Str("endpoint", cfg.Endpoint).
		Str("prefix", cfg.Prefix).
		Msg("Session archive configured")

	return newS3Archiver(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Archiver(client s3API, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: prefix,
		retry:  utils.ExternalAPIRetryConfig(),
		now:    time.Now,
	}
}

// Key returns the object key a session is archived under at time t.
func (a *S3Archiver) Key(sessionID string, t time.Time) string {
	return path.Join(a.prefix, t.UTC().Format("2006-01-02"), sessionID+".json")
}

// Archive uploads the session, retrying transient failures. It returns
// only once the object is stored, so the caller may delete the session.
func (a *S3Archiver) Archive(ctx context.Context, session *models.Session) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	key := a.Key(session.SessionID, a.now())

	_, err = utils.RetryWithResult(ctx, a.retry, func() (*s3.PutObjectOutput, error) {
		return a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
			Metadata: map[string]string{
				"session-id": session.SessionID,
				"plan":       string(session.Plan),
			},
		})
	})
	if err != nil {
		return fmt.Errorf("failed to archive session %s: %w", session.SessionID, err)
	}

	log.Debug().
		Str("session_id", session.SessionID).
		Str("key", key).
		Int("bytes", len(body)).
		Msg("Session archived")

	return nil
}

// Ping checks that the bucket is reachable with the configured credentials.
func (a *S3Archiver) Ping(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("archive bucket unreachable: %w", err)
	}
	return nil
}
