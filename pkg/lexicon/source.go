// Package lexicon opens lexicon and model files for expansion modules. A
// location is a local path or an s3://bucket/key URL; .gz, .zst and .lz4
// suffixes are decompressed transparently.
package lexicon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pierrec/lz4/v4"

	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Query-Expansion-Platform/pkg/resilience"
)

const s3Scheme = "s3://"

// Source opens lexicons from disk or object storage.
type Source struct {
	s3     *minio.Client
	retry  resilience.RetryConfig
	logger *slog.Logger
}

// NewSource builds a Source. Object storage is only available when an
// endpoint is configured.
func NewSource(cfg config.StorageConfig) (*Source, error) {
	s := &Source{
		retry:  resilience.RetryConfig{MaxAttempts: 4, Retryable: retryableS3},
		logger: slog.Default().With("component", "lexicon-source"),
	}
	if cfg.Endpoint == "" {
		return s, nil
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, apperrors.Configf("storage endpoint %s: %v", cfg.Endpoint, err)
	}
	s.s3 = client
	return s, nil
}

// Open returns a reader over the decompressed contents of location.
func (s *Source) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, apperrors.Configf("empty lexicon location")
	}
	var (
		raw io.ReadCloser
		err error
	)
	if strings.HasPrefix(location, s3Scheme) {
		raw, err = s.openS3(ctx, location)
	} else {
		raw, err = os.Open(location)
		if err != nil {
			err = apperrors.Loadf("opening %s: %v", location, err)
		}
	}
	if err != nil {
		return nil, err
	}
	rc, err := decompress(location, raw)
	if err != nil {
		raw.Close()
		return nil, apperrors.Loadf("decompressing %s: %v", location, err)
	}
	return rc, nil
}

func (s *Source) openS3(ctx context.Context, location string) (io.ReadCloser, error) {
	if s.s3 == nil {
		return nil, apperrors.Configf("%s: no storage endpoint configured", location)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(location, s3Scheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, apperrors.Configf("malformed object location %q", location)
	}

	var obj *minio.Object
	err := resilience.Retry(ctx, "lexicon-fetch", s.retry, func(ctx context.Context) error {
		o, err := s.s3.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		// GetObject is lazy; Stat surfaces missing objects and auth errors.
		info, err := o.Stat()
		if err != nil {
			o.Close()
			return err
		}
		s.logger.Info("fetching lexicon", "bucket", bucket, "key", key, "size", info.Size)
		obj = o
		return nil
	})
	if err != nil {
		return nil, apperrors.Loadf("fetching %s: %v", location, err)
	}
	return obj, nil
}

func retryableS3(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return false
	}
	return true
}

func decompress(location string, raw io.ReadCloser) (io.ReadCloser, error) {
	switch strings.ToLower(path.Ext(location)) {
	case ".gz":
		zr, err := gzip.NewReader(raw)
		if err != nil {
			return nil, err
		}
		return &stacked{Reader: zr, closers: []io.Closer{zr, raw}}, nil
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(raw)
		if err != nil {
			return nil, err
		}
		rc := dec.IOReadCloser()
		return &stacked{Reader: rc, closers: []io.Closer{rc, raw}}, nil
	case ".lz4":
		return &stacked{Reader: lz4.NewReader(raw), closers: []io.Closer{raw}}, nil
	default:
		return raw, nil
	}
}

// stacked closes a decoder and the stream beneath it.
type stacked struct {
	io.Reader
	closers []io.Closer
}

func (s *stacked) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return fmt.Errorf("closing lexicon: %w", first)
	}
	return nil
}
