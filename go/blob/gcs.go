package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"
)

var _ Bucket = (*GCSBucket)(nil)

type GCSBucket struct {
	client *storage.Client
	bucket string
}

// NewGCSBucket returns a Bucket for the named GCS bucket. The client is
// shared and is not closed by the GCSBucket.
func NewGCSBucket(client *storage.Client, bucket string) *GCSBucket {
	return &GCSBucket{
		client: client,
		bucket: bucket,
	}
}

func (b *GCSBucket) NewReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (b *GCSBucket) NewWriter(ctx context.Context, key string, opts ...WriterOption) io.WriteCloser {
	cfg := getWriterConfig(opts)

	w := b.client.Bucket(b.bucket).Object(key).NewWriter(ctx)
	w.ContentType = cfg.contentType

	return w
}

func (b *GCSBucket) URI(key string) string {
	return "gs://" + path.Join(b.bucket, key)
}

func (b *GCSBucket) Delete(ctx context.Context, uris []string) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(5)

	for _, uri := range uris {
		trimmed := strings.TrimPrefix(uri, "gs://")
		bucket, key, ok := strings.Cut(trimmed, "/")
		if !ok {
			return fmt.Errorf("invalid uri %q", uri)
		}
		group.Go(func() error {
			if err := b.client.Bucket(bucket).Object(key).Delete(groupCtx); err != nil {
				if IsNotFound(err) {
					return nil
				}

				return fmt.Errorf("deleting blob %q: %w", uri, err)
			}
			return nil
		})
	}

	return group.Wait()
}

// CheckPermissions verifies that objects can be written, read, and deleted
// under prefix.
func (b *GCSBucket) CheckPermissions(ctx context.Context, prefix string) error {
	handleErr := func(err *googleapi.Error) error {
		if err.Code == http.StatusNotFound {
			return permissionsErrorNoSuchBucket
		} else if err.Code == http.StatusForbidden {
			return permissionsErrorUnauthorized
		}

		return err
	}

	return checkPermissions(ctx, b, prefix, handleErr)
}

// IsNotFound is true for errors reporting a missing bucket or object.
func IsNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}

	var gErr *googleapi.Error
	return errors.As(err, &gErr) && gErr.Code == http.StatusNotFound
}
