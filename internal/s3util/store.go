// Package s3util implements the upload domain's object store port on S3.
package s3util

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/fpang/lesson-pipeline/internal/file"
)

// PresignExpiry is how long generated upload URLs stay valid.
const PresignExpiry = time.Hour

// Store implements file.ObjectStore on the AWS S3 SDK.
type Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
}

// Compile-time interface check.
var _ file.ObjectStore = (*Store)(nil)

// NewStore creates a Store from an S3 client and its presign client.
func NewStore(client *s3.Client, presigner *s3.PresignClient) *Store {
	return &Store{client: client, presigner: presigner}
}

// PresignPut returns a presigned PUT URL for the key. The content type is
// part of the signature, so the returned headers must be sent verbatim.
func (s *Store) PresignPut(ctx context.Context, bucket, key, contentType string, metadata map[string]string) (file.UploadURL, error) {
	input := &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}
	if len(metadata) > 0 {
		input.Metadata = metadata
	}

	result, err := s.presigner.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = PresignExpiry
	})
	if err != nil {
		return file.UploadURL{}, fmt.Errorf("presign PutObject %s/%s: %w", bucket, key, err)
	}

	log.Debug().Str("bucket", bucket).Str("key", key).Str("contentType", contentType).Msg("Presigned upload URL generated")
	return file.UploadURL{
		URL:     result.URL,
		Headers: map[string]string{"content-type": contentType},
	}, nil
}

// ObjectExists probes the key with HeadObject. A 404 means the object is
// absent (false, nil); anything else is an infrastructure error.
func (s *Store) ObjectExists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("HeadObject %s/%s: %w", bucket, key, err)
	}
	return true, nil
}

// GetObject reads the full object body and returns it with the object's
// user metadata.
func (s *Store) GetObject(ctx context.Context, bucket, key string) ([]byte, map[string]string, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read object body %s/%s: %w", bucket, key, err)
	}
	return body, result.Metadata, nil
}

// isNotFound distinguishes "object absent" from infrastructure failures.
// HeadObject reports absence as a bare 404 rather than NoSuchKey.
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}
