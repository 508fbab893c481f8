package s3infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store gives reviewers read access to evidence documents. Uploads happen
// elsewhere; document refs are object keys inside bucket.
type Store struct {
	presigner *s3.PresignClient
	bucket    string
}

// NewClient creates an S3 client. When endpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, endpointURL string) *s3.Client {
	var clientOpts []func(*s3.Options)
	if endpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// NewStore creates a Store with the given S3 client and bucket name.
func NewStore(client *s3.Client, bucket string) *Store {
	return &Store{presigner: s3.NewPresignClient(client), bucket: bucket}
}

// PresignedURL generates a time-limited presigned GET URL for a document ref.
func (s *Store) PresignedURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	key, err := ObjectKey(ref, s.bucket)
	if err != nil {
		return "", err
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get object: %w", err)
	}
	return req.URL, nil
}

// ObjectKey accepts either a bare key or an s3://bucket/key URI for bucket.
func ObjectKey(ref, bucket string) (string, error) {
	if !strings.HasPrefix(ref, "s3://") {
		key := strings.TrimPrefix(ref, "/")
		if key == "" {
			return "", fmt.Errorf("empty document ref")
		}
		return key, nil
	}
	rest := strings.TrimPrefix(ref, "s3://")
	b, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		return "", fmt.Errorf("malformed document ref %q", ref)
	}
	if b != bucket {
		return "", fmt.Errorf("document ref %q is outside bucket %s", ref, bucket)
	}
	return key, nil
}
