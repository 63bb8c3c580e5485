package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory, keyed by bucket/key.
type fakeS3 struct {
	objects map[string][]byte
	headErr error
	getErr  error
	body    func([]byte) io.ReadCloser
	length  *int64
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	body := io.NopCloser(bytes.NewReader(data))
	if f.body != nil {
		body = f.body(data)
	}
	length := aws.Int64(int64(len(data)))
	if f.length != nil {
		length = f.length
	}
	return &s3.GetObjectOutput{Body: body, ContentLength: length}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

// failingReader returns data then an error instead of EOF.
type failingReader struct {
	r io.Reader
}

func (f *failingReader) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	if err == io.EOF {
		return n, errors.New("connection reset")
	}
	return n, err
}

func (f *failingReader) Close() error { return nil }

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestExists(t *testing.T) {
	api := newFakeS3()
	api.objects["vectors/a.bin"] = []byte("x")
	store := NewS3Store(api)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "vectors", "a.bin")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(ctx, "vectors", "missing.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExistsNotFoundCodes(t *testing.T) {
	for _, code := range []string{"NotFound", "NoSuchKey"} {
		t.Run(code, func(t *testing.T) {
			api := newFakeS3()
			api.headErr = &smithy.GenericAPIError{Code: code}
			ok, err := NewS3Store(api).Exists(context.Background(), "b", "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestExistsPropagatesOtherErrors(t *testing.T) {
	api := newFakeS3()
	api.headErr = &smithy.GenericAPIError{Code: "AccessDenied"}

	ok, err := NewS3Store(api).Exists(context.Background(), "b", "k")
	assert.False(t, ok)
	var apiErr smithy.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

func TestDownloadChunksAndProgress(t *testing.T) {
	api := newFakeS3()
	data := []byte(strings.Repeat("0123456789", 25))
	api.objects["vectors/set/base.fbin"] = data

	var progress []Progress
	dir := t.TempDir()
	store := NewS3Store(api, WithChunkSize(64), WithTempDir(dir), WithProgress(func(p Progress) {
		progress = append(progress, p)
	}))

	path, err := store.Download(context.Background(), "vectors", "set/base.fbin")
	require.NoError(t, err)
	assert.Equal(t, ".fbin", filepath.Ext(path))
	assert.Equal(t, dir, filepath.Dir(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.Len(t, progress, 4)
	for i, p := range progress {
		assert.Equal(t, "set/base.fbin", p.Key)
		assert.Equal(t, int64(len(data)), p.Total)
		if i > 0 {
			assert.Greater(t, p.Downloaded, progress[i-1].Downloaded)
		}
	}
	assert.Equal(t, int64(len(data)), progress[3].Downloaded)

	store.Cleanup(path)
	assert.Empty(t, tempFiles(t, dir))
}

func TestDownloadRemovesTempFileOnFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(api *fakeS3)
	}{
		{
			name: "read error",
			setup: func(api *fakeS3) {
				api.body = func(data []byte) io.ReadCloser {
					return &failingReader{r: bytes.NewReader(data)}
				}
			},
		},
		{
			name: "short body",
			setup: func(api *fakeS3) {
				api.length = aws.Int64(10_000)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeS3()
			api.objects["b/k.bin"] = bytes.Repeat([]byte{1}, 100)
			tt.setup(api)
			dir := t.TempDir()

			path, err := NewS3Store(api, WithChunkSize(16), WithTempDir(dir)).Download(context.Background(), "b", "k.bin")
			assert.Error(t, err)
			assert.Empty(t, path)
			assert.Empty(t, tempFiles(t, dir))
		})
	}
}

func TestDownloadMissingObject(t *testing.T) {
	dir := t.TempDir()
	_, err := NewS3Store(newFakeS3(), WithTempDir(dir)).Download(context.Background(), "b", "nope")
	var nsk *types.NoSuchKey
	assert.ErrorAs(t, err, &nsk)
	assert.Empty(t, tempFiles(t, dir))
}

func TestDownloadCancelled(t *testing.T) {
	api := newFakeS3()
	api.objects["b/k"] = []byte("payload")
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewS3Store(api, WithTempDir(dir)).Download(ctx, "b", "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tempFiles(t, dir))
}

func TestUpload(t *testing.T) {
	api := newFakeS3()
	path := filepath.Join(t.TempDir(), "index.graph")
	require.NoError(t, os.WriteFile(path, []byte("graph"), 0o600))

	require.NoError(t, NewS3Store(api).Upload(context.Background(), "indexes", "job-1/index.graph", path))
	assert.Equal(t, []byte("graph"), api.objects["indexes/job-1/index.graph"])

	err := NewS3Store(api).Upload(context.Background(), "indexes", "x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestCleanupIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	store := NewS3Store(newFakeS3())

	store.Cleanup(path)
	store.Cleanup(path)
	store.Cleanup("")

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
