package objectstore

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigilstream/pkg/config"
	"vigilstream/pkg/errors"
)

func TestLocal_FetchMetadata(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "", "http://localhost:5000/media/")
	require.NoError(t, err)

	var probed string
	store.probe = func(_ context.Context, path string) (float64, error) {
		probed = path
		return 42.5, nil
	}

	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "clip.mp4"), []byte("data"), 0644))

	meta, err := store.FetchMetadata(context.Background(), "clip.mp4")
	require.NoError(t, err)
	require.NotNil(t, meta.DurationSeconds)
	assert.Equal(t, 42.5, *meta.DurationSeconds)
	assert.Equal(t, filepath.Join(store.Root(), "clip.mp4"), probed)

	_, err = store.FetchMetadata(context.Background(), "missing.mp4")
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}

func TestLocal_ProbeFailureIsReported(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "", "")
	require.NoError(t, err)
	store.probe = func(context.Context, string) (float64, error) {
		return 0, stderrors.New("exec: ffprobe not found")
	}
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "clip.mp4"), nil, 0644))

	_, err = store.FetchMetadata(context.Background(), "clip.mp4")
	assert.Error(t, err)
}

func TestLocal_ProbeRunsConfiguredBinary(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ffprobe")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho 12.25\n"), 0755))

	store, err := NewLocal(filepath.Join(dir, "media"), script, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(store.Root(), "a.mp4"), nil, 0644))

	meta, err := store.FetchMetadata(context.Background(), "a.mp4")
	require.NoError(t, err)
	require.NotNil(t, meta.DurationSeconds)
	assert.Equal(t, 12.25, *meta.DurationSeconds)
}

func TestLocal_ResolveStaysInsideRoot(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "", "")
	require.NoError(t, err)

	path, err := store.resolve("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Root(), "etc", "passwd"), path)

	_, err = store.resolve("")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestLocal_DeleteAndURL(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "", "http://localhost:5000/media/")
	require.NoError(t, err)
	path := filepath.Join(store.Root(), "gone.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	require.NoError(t, store.Delete(context.Background(), "gone.mp4"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	require.NoError(t, store.Delete(context.Background(), "gone.mp4"))

	assert.Equal(t, "http://localhost:5000/media/my%20clip.mp4", store.URL("my clip.mp4"))
}

type fakeS3 struct {
	head    *s3.HeadObjectOutput
	headErr error
	deleted []string
}

func (f *fakeS3) HeadObject(_ context.Context, _ *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return f.head, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_FetchMetadata(t *testing.T) {
	fake := &fakeS3{head: &s3.HeadObjectOutput{Metadata: map[string]string{"Duration": "93.4"}}}
	store := newS3(fake, "media-bucket", "eu-west-1")

	meta, err := store.FetchMetadata(context.Background(), "videos/a.mp4")
	require.NoError(t, err)
	require.NotNil(t, meta.DurationSeconds)
	assert.InDelta(t, 93.4, *meta.DurationSeconds, 0.0001)

	fake.head = &s3.HeadObjectOutput{Metadata: map[string]string{}}
	meta, err = store.FetchMetadata(context.Background(), "videos/a.mp4")
	require.NoError(t, err)
	assert.Nil(t, meta.DurationSeconds)

	fake.head = &s3.HeadObjectOutput{Metadata: map[string]string{"duration": "long"}}
	_, err = store.FetchMetadata(context.Background(), "videos/a.mp4")
	assert.Error(t, err)

	fake.headErr = &types.NotFound{}
	_, err = store.FetchMetadata(context.Background(), "videos/a.mp4")
	assert.ErrorIs(t, err, errors.ErrObjectNotFound)
}

func TestS3_DeleteAndURL(t *testing.T) {
	fake := &fakeS3{}
	store := newS3(fake, "media-bucket", "eu-west-1")

	require.NoError(t, store.Delete(context.Background(), "videos/a.mp4"))
	assert.Equal(t, []string{"videos/a.mp4"}, fake.deleted)
	assert.Equal(t, "https://media-bucket.s3.eu-west-1.amazonaws.com/videos/a.mp4", store.URL("videos/a.mp4"))
}

func TestOpen(t *testing.T) {
	store, err := Open(context.Background(), config.ObjectStoreConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, store)

	_, err = Open(context.Background(), config.ObjectStoreConfig{Driver: "ftp"})
	assert.Error(t, err)
}
