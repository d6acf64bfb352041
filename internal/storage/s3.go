package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cloo-solutions/groundwork/internal/domain"
)

const (
	sourcePrefix   = "sources/"
	contractPrefix = "contracts/"
	filenameMeta   = "filename"
)

// S3ClientConfig holds configuration for S3SourceStore
type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3SourceStore archives raw document sources in S3-compatible storage (e.g., RustFS).
// The source bytes live under sources/<doc_id>; a tabular contract, when present,
// under contracts/<doc_id>.
type S3SourceStore struct {
	client *s3.Client
	bucket string
}

// NewS3SourceStore creates a new S3SourceStore with the given configuration
func NewS3SourceStore(ctx context.Context, cfg S3ClientConfig) (*S3SourceStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3SourceStore{client: client, bucket: cfg.Bucket}, nil
}

// Put stores the source bytes and replaces or removes the contract object.
func (c *S3SourceStore) Put(ctx context.Context, src *domain.DocumentSource) error {
	contentType := src.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(sourcePrefix + src.DocID),
		Body:        bytes.NewReader(src.Data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{filenameMeta: src.Filename},
	})
	if err != nil {
		return fmt.Errorf("failed to put source: %w", err)
	}

	if len(src.Contract) == 0 {
		return c.deleteObject(ctx, contractPrefix+src.DocID)
	}
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(contractPrefix + src.DocID),
		Body:        bytes.NewReader(src.Contract),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return fmt.Errorf("failed to put contract: %w", err)
	}
	return nil
}

// Get returns domain.ErrSourceNotFound when no source was archived for docID.
func (c *S3SourceStore) Get(ctx context.Context, docID string) (*domain.DocumentSource, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(sourcePrefix + docID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	src := &domain.DocumentSource{
		DocID:       docID,
		Data:        data,
		Filename:    out.Metadata[filenameMeta],
		ContentType: aws.ToString(out.ContentType),
		UpdatedAt:   aws.ToTime(out.LastModified),
	}
	if src.UpdatedAt.IsZero() {
		src.UpdatedAt = time.Now().UTC()
	}

	contract, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(contractPrefix + docID),
	})
	switch {
	case err == nil:
		defer contract.Body.Close()
		if src.Contract, err = io.ReadAll(contract.Body); err != nil {
			return nil, fmt.Errorf("failed to read contract: %w", err)
		}
	case !isNotFound(err):
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return src, nil
}

// Delete removes both objects; deleting a missing key is not an error in S3.
func (c *S3SourceStore) Delete(ctx context.Context, docID string) error {
	if err := c.deleteObject(ctx, sourcePrefix+docID); err != nil {
		return err
	}
	return c.deleteObject(ctx, contractPrefix+docID)
}

func (c *S3SourceStore) deleteObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (c *S3SourceStore) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err == nil {
		return nil
	}

	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	return nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
