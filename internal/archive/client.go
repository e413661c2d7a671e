// Package archive implements the archival job: tarring and gzipping
// forecast artifacts past a retention window, checksumming them, and
// uploading the archive to an S3-compatible bucket, then pruning the
// artifacts (and their Storage Index rows) from local disk.
package archive

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/rozsasarpi/gridcast/internal/config"
)

// Object is one listed bucket entry as List reports it: key and size.
type Object struct {
	Key  string
	Size int64
}

// Client uploads, lists, and deletes archive objects in an
// S3-compatible bucket (AWS S3 or an R2-style endpoint reached via a
// custom BaseEndpoint), grounded on the teacher's R2BackupService/
// R2Client pairing but built directly against aws-sdk-go-v2 rather than
// a bespoke wrapper, since those are the SDK packages already wired
// throughout the examples.
type Client struct {
	s3       *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewClient builds a Client from ArchivalConfig. Credentials come from
// the standard AWS SDK chain (env vars, shared config, instance role);
// a non-empty Endpoint switches the client to path-style addressing for
// R2/MinIO-style S3-compatible endpoints.
func NewClient(ctx context.Context, cfg config.ArchivalConfig, log zerolog.Logger) (*Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		s3:       s3Client,
		uploader: manager.NewUploader(s3Client),
		bucket:   cfg.Bucket,
		log:      log.With().Str("component", "archive_client").Logger(),
	}, nil
}

// Upload streams body (size bytes) to key in the bucket via the
// multipart manager.Uploader, matching the teacher's R2Client.Upload.
func (c *Client) Upload(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}
	return nil
}

// List returns every object whose key starts with prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive: list %s*: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			var size int64
			if obj.Size != nil {
				size = *obj.Size
			}
			objects = append(objects, Object{Key: *obj.Key, Size: size})
		}
	}
	return objects, nil
}

// Delete removes one object from the bucket.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("archive: delete %s: %w", key, err)
	}
	return nil
}
