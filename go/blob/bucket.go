// Package blob provides a small interface over object storage buckets, used
// to fetch uploaded source files and to stage load files.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type writerConfig struct {
	contentType string
}

type WriterOption func(*writerConfig)

func WithContentType(contentType string) WriterOption {
	return func(cfg *writerConfig) {
		cfg.contentType = contentType
	}
}

func getWriterConfig(opts []WriterOption) writerConfig {
	var cfg writerConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Bucket is a common interface for working with blob storage. Conceptually, a
// Bucket is aligned with a GCS bucket.
type Bucket interface {
	// NewReader returns a stream of bytes for reading from the given key. The
	// caller is responsible for closing the returned ReadCloser.
	NewReader(ctx context.Context, key string) (io.ReadCloser, error)

	// NewWriter returns a WriteCloser to write an object to the bucket. The
	// object will be readable after Close returns.
	NewWriter(ctx context.Context, key string, opts ...WriterOption) io.WriteCloser

	// URI creates an identifier from a file key by prepending the URI scheme
	// and bucket, for example "gs://bucket/key".
	URI(key string) string

	// Delete deletes the objects per the list of URIs. Objects which do not
	// exist are ignored.
	Delete(ctx context.Context, uris []string) error
}

// ErrObjectTooLarge is returned by ReadObject when an object exceeds the
// permitted size.
var ErrObjectTooLarge = errors.New("object is too large")

// ReadObject reads the entire content of key. If limit is positive, objects
// larger than limit bytes are rejected with ErrObjectTooLarge.
func ReadObject(ctx context.Context, bucket Bucket, key string, limit int64) ([]byte, error) {
	r, err := bucket.NewReader(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", bucket.URI(key), err)
	}
	defer r.Close()

	var src io.Reader = r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", bucket.URI(key), err)
	} else if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("reading %q: %w (limit is %d bytes)", bucket.URI(key), ErrObjectTooLarge, limit)
	}

	return data, nil
}

// Sanitized versions of user-facing errors for the two common cases of the
// wrong bucket input, or incorrect / insufficient authorization to do various
// actions on that bucket.
var (
	permissionsErrorNoSuchBucket = errors.New("no such bucket")
	permissionsErrorUnauthorized = errors.New("unauthorized")
)

// checkPermissions writes, reads back, and deletes a test object under prefix.
func checkPermissions[T error](
	ctx context.Context,
	bucket Bucket,
	prefix string,
	// handleErr adapts the error of type T into a more user-friendly error.
	handleErr func(err T) error,
) error {
	var asErr T
	adaptErr := func(err error) error {
		if errors.As(err, &asErr) {
			// Log the original error message, since it can sometimes contain
			// useful (although potentially confusing) information.
			log.WithField("err", err).Error("bucket permissions check failed")
			err = handleErr(asErr)
		}
		return err
	}

	bucketAndPrefixURI := bucket.URI(prefix)

	testData := []byte("test")
	testKey := path.Join(prefix, uuid.NewString())
	testWriter := bucket.NewWriter(ctx, testKey)
	got := make([]byte, len(testData))

	if n, err := testWriter.Write(testData); err != nil {
		return fmt.Errorf("unable to write to %q: %w", bucketAndPrefixURI, adaptErr(err))
	} else if n != len(testData) {
		return fmt.Errorf("short write: %d vs %d", n, len(testData))
	} else if err := testWriter.Close(); err != nil {
		return fmt.Errorf("unable to write to %q: %w", bucketAndPrefixURI, adaptErr(err))
	} else if reader, err := bucket.NewReader(ctx, testKey); err != nil {
		return fmt.Errorf("unable to read from %q: %w", bucketAndPrefixURI, adaptErr(err))
	} else if n, err := io.ReadFull(reader, got); err != nil && err != io.EOF {
		return fmt.Errorf("unable to read from %q: %w", bucketAndPrefixURI, adaptErr(err))
	} else if n != len(testData) {
		return fmt.Errorf("short read: %d vs %d", n, len(testData))
	} else if !bytes.Equal(testData, got) {
		return fmt.Errorf("io error: read bytes do not match written bytes")
	} else if err := reader.Close(); err != nil {
		return fmt.Errorf("unexpected error when closing reader: %w", err)
	} else if err := bucket.Delete(ctx, []string{bucket.URI(testKey)}); err != nil {
		return fmt.Errorf("unable to delete from %q: %w", bucketAndPrefixURI, adaptErr(err))
	}

	return nil
}
