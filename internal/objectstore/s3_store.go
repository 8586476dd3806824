package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/book-expert/scripture-service/internal/core"
)

const s3URLFormat = "https://%s.s3.amazonaws.com"

// S3Options configures the S3 backend. Endpoint and ForcePathStyle target S3-compatible
// services; empty credentials fall back to the default AWS credential chain.
type S3Options struct {
	Bucket          string
	Region          string
	Endpoint        string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
	Anonymous       bool
	PublicBaseURL   string
}

// S3ObjectStore implements core.ObjectStore on an S3 bucket.
type S3ObjectStore struct {
	s3Svc         *s3.S3
	bucket        string
	publicBaseURL string
}

// NewS3 creates an S3 backed store.
func NewS3(opts S3Options) (*S3ObjectStore, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("%w: s3 bucket is required", core.ErrStorage)
	}

	awsConfig := aws.NewConfig().WithRegion(opts.Region)

	if opts.Endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(opts.Endpoint).WithS3ForcePathStyle(opts.ForcePathStyle)
	}

	switch {
	case opts.Anonymous:
		awsConfig = awsConfig.WithCredentials(credentials.AnonymousCredentials)
	case opts.AccessKeyID != "":
		awsConfig = awsConfig.WithCredentials(
			credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, ""),
		)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create aws session: %w", core.ErrStorage, err)
	}

	publicBaseURL := opts.PublicBaseURL
	if publicBaseURL == "" {
		publicBaseURL = fmt.Sprintf(s3URLFormat, opts.Bucket)
	}

	return &S3ObjectStore{
		s3Svc:         s3.New(sess),
		bucket:        opts.Bucket,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Exists reports whether key is present in the bucket.
func (s *S3ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.s3Svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("%w: failed to stat object '%s' in bucket '%s': %w", core.ErrStorage, key, s.bucket, err)
	}

	return true, nil
}

// Download retrieves an object from the bucket.
func (s *S3ObjectStore) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3Svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get object '%s' from bucket '%s': %w", core.ErrStorage, key, s.bucket, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read object '%s': %w", core.ErrStorage, key, err)
	}

	return data, nil
}

// Upload writes an object to the bucket, replacing any previous version.
func (s *S3ObjectStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.s3Svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		Metadata:      map[string]*string{metadataDigest: aws.String(Digest(data))},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to put object '%s' to bucket '%s': %w", core.ErrStorage, key, s.bucket, err)
	}

	return nil
}

// URL returns the public address of key.
func (s *S3ObjectStore) URL(key string) string {
	return publicURL(s.publicBaseURL, "", key)
}

func isNotFound(err error) bool {
	var requestFailure awserr.RequestFailure
	if errors.As(err, &requestFailure) && requestFailure.StatusCode() == http.StatusNotFound {
		return true
	}

	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return awsErr.Code() == s3.ErrCodeNoSuchKey || awsErr.Code() == "NotFound"
	}

	return false
}
