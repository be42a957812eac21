package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/miniiam/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	key         string
	contentType string
	size        int64
	body        []byte
}

func (b *recordingBackend) EnsureBucket(ctx context.Context) error { return nil }

func (b *recordingBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}
	b.key, b.size, b.contentType, b.body = key, size, contentType, buf.Bytes()
	return nil
}

func (b *recordingBackend) Bucket() string { return "reports" }

func TestPutJSON(t *testing.T) {
	backend := &recordingBackend{}
	s := NewStorage(backend)

	err := s.PutJSON(context.Background(), "reports/a.json", map[string]int{"total": 3})
	require.NoError(t, err)

	assert.Equal(t, "reports/a.json", backend.key)
	assert.Equal(t, "application/json", backend.contentType)
	assert.Equal(t, int64(len(backend.body)), backend.size)

	var decoded map[string]int
	require.NoError(t, json.Unmarshal(backend.body, &decoded))
	assert.Equal(t, 3, decoded["total"])
	assert.Equal(t, "reports", s.Bucket())
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendNone})
	require.NoError(t, err)
	assert.Nil(t, s)

	_, err = Open(context.Background(), config.StorageConfig{Backend: "s3"})
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = Open(context.Background(), config.StorageConfig{Backend: "minio"})
	assert.ErrorContains(t, err, "minio endpoint is required")

	_, err = Open(context.Background(), config.StorageConfig{Backend: "gcs"})
	assert.ErrorContains(t, err, "gcs bucket is required")
}
