// Package objectstore moves vector files and built artifacts between workers
// and S3-compatible object storage.
//
// Downloads land in temporary files that the caller releases with Cleanup once
// the build is done. Large objects are read in fixed-size chunks and reported
// through an optional progress callback so operators can follow long transfers
// in the worker log.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultChunkSize is the read size used by Download.
const DefaultChunkSize = 1 << 20

// Store is the object-storage collaborator used by workers.
type Store interface {
	// Exists reports whether bucket/key is present. A missing object is not an
	// error.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Download copies bucket/key into a new temporary file and returns its path.
	Download(ctx context.Context, bucket, key string) (string, error)

	// Upload stores the file at path as bucket/key.
	Upload(ctx context.Context, bucket, key, path string) error

	// Cleanup removes a file returned by Download. It never fails.
	Cleanup(path string)
}

// API is the subset of *s3.Client used by S3Store.
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Progress is reported after every chunk of a download.
type Progress struct {
	Key        string
	Downloaded int64
	Total      int64 // -1 when the object size is unknown
}

// S3Store implements Store on the AWS SDK.
type S3Store struct {
	api        API
	chunkSize  int
	tempDir    string
	onProgress func(Progress)
}

// Option configures an S3Store.
type Option func(*S3Store)

// WithChunkSize sets the download read size.
func WithChunkSize(n int) Option {
	return func(s *S3Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithTempDir places downloads under dir instead of os.TempDir().
func WithTempDir(dir string) Option {
	return func(s *S3Store) { s.tempDir = dir }
}

// WithProgress registers a download progress callback.
func WithProgress(fn func(Progress)) Option {
	return func(s *S3Store) { s.onProgress = fn }
}

// NewS3Store wraps an S3 API.
func NewS3Store(api API, opts ...Option) *S3Store {
	s := &S3Store{api: api, chunkSize: DefaultChunkSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromEnv builds an S3Store from the default AWS configuration chain
// (environment, shared config, instance role). A non-empty endpoint points the
// client at an S3-compatible service such as MinIO.
func NewFromEnv(ctx context.Context, region, endpoint string, opts ...Option) (*S3Store, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Store(client, opts...), nil
}

// Exists issues a HEAD request for the object.
func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
}

// Download streams the object into a temporary file named after the key's
// extension. The file is removed if any step fails.
func (s *S3Store) Download(ctx context.Context, bucket, key string) (path string, err error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	f, err := os.CreateTemp(s.tempDir, "objectstore-*"+filepath.Ext(key))
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	buf := make([]byte, s.chunkSize)
	var downloaded int64
	for {
		if err = ctx.Err(); err != nil {
			return "", err
		}
		n, readErr := io.ReadFull(out.Body, buf)
		if n > 0 {
			if _, err = f.Write(buf[:n]); err != nil {
				return "", err
			}
			downloaded += int64(n)
			if s.onProgress != nil {
				s.onProgress(Progress{Key: key, Downloaded: downloaded, Total: total})
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			err = fmt.Errorf("read s3://%s/%s: %w", bucket, key, readErr)
			return "", err
		}
	}
	if total >= 0 && downloaded != total {
		err = fmt.Errorf("read s3://%s/%s: got %d of %d bytes", bucket, key, downloaded, total)
		return "", err
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	log.Printf("[objectstore] downloaded s3://%s/%s to %s (%d bytes)", bucket, key, f.Name(), downloaded)
	return f.Name(), nil
}

// Upload sends the file at path to bucket/key.
func (s *S3Store) Upload(ctx context.Context, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	log.Printf("[objectstore] uploaded %s to s3://%s/%s (%d bytes)", path, bucket, key, info.Size())
	return nil
}

// Cleanup removes path. Missing files and empty paths are ignored.
func (s *S3Store) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[objectstore] WARN: cleanup %s: %v", path, err)
	}
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
