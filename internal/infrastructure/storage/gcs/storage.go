// Package gcs stores document content in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/facturo/ingesta/internal/core/domain"
	"github.com/facturo/ingesta/internal/infrastructure/resilience"
)

type Storage struct {
	client   *storage.Client
	bucket   string
	executor *resilience.Executor
}

func New(ctx context.Context, bucket string, executor *resilience.Executor) (*Storage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{
		client:   client,
		bucket:   bucket,
		executor: executor,
	}, nil
}

// Put writes the object only if it does not already exist. A precondition
// failure surfaces as ErrKeyConflict so the caller can pick another key;
// treating it as success would let this document's row point at another
// writer's bytes. The call is not retried in place because the reader can
// only be consumed once; the scheduler re-opens the source file on its own
// retry.
func (s *Storage) Put(ctx context.Context, key string, data io.Reader, contentType string) error {
	call := func(ctx context.Context) error {
		writer := s.client.Bucket(s.bucket).Object(key).
			If(storage.Conditions{DoesNotExist: true}).
			NewWriter(ctx)
		writer.ContentType = contentType

		if _, err := io.Copy(writer, data); err != nil {
			_ = writer.Close()
			if isPreconditionFailed(err) {
				return domain.WrapError(domain.ErrKeyConflict, "gcs put", err)
			}
			return fmt.Errorf("write object %s: %w", key, err)
		}
		if err := writer.Close(); err != nil {
			if isPreconditionFailed(err) {
				return domain.WrapError(domain.ErrKeyConflict, "gcs put", err)
			}
			return fmt.Errorf("finalize object %s: %w", key, err)
		}
		return nil
	}

	err := s.executor.Execute(ctx, "gcs.put", call, putClassifier)
	return wrapTemporaryIfNeeded("gcs put", err)
}

func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	var reader io.ReadCloser
	err := s.executor.Execute(ctx, "gcs.get", func(ctx context.Context) error {
		r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
		if err != nil {
			return fmt.Errorf("open object %s: %w", key, err)
		}
		reader = r
		return nil
	}, classifyGCSError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("gcs get", err)
	}
	return reader, nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	err := s.executor.Execute(ctx, "gcs.delete", func(ctx context.Context) error {
		err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete object %s: %w", key, err)
		}
		return nil
	}, classifyGCSError)
	return wrapTemporaryIfNeeded("gcs delete", err)
}

func (s *Storage) Presign(_ context.Context, key string, ttl time.Duration) (string, error) {
	url, err := s.client.Bucket(s.bucket).SignedURL(key, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", key, err)
	}
	return url, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == 412
}
