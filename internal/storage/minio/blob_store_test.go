package minio_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/minio"
)

type fakeS3 struct {
	mu           sync.Mutex
	bucketExists bool
	madeBucket   bool
	objects      map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
	bucketOnly := len(parts) == 1 || parts[1] == ""
	switch {
	case r.Method == http.MethodHead && bucketOnly:
		if !f.bucketExists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && bucketOnly:
		f.bucketExists = true
		f.madeBucket = true
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[parts[1]] = body
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func newFake(t *testing.T, exists bool) (*fakeS3, minio.Config) {
	t.Helper()
	fake := &fakeS3{bucketExists: exists, objects: make(map[string][]byte)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	return fake, minio.Config{
		Endpoint:  strings.TrimPrefix(server.URL, "http://"),
		AccessKey: "admin",
		SecretKey: "admin123",
		Bucket:    "aqi-raw",
		Region:    "us-east-1",
	}
}

func TestNewValidation(t *testing.T) {
	_, err := minio.New(context.Background(), minio.Config{Bucket: "b"})
	require.Error(t, err)

	_, err = minio.New(context.Background(), minio.Config{Endpoint: "localhost:9000"})
	require.Error(t, err)
}

func TestNewCreatesMissingBucket(t *testing.T) {
	fake, cfg := newFake(t, false)

	store, err := minio.New(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.True(t, fake.madeBucket)
}

func TestPutObject(t *testing.T) {
	fake, cfg := newFake(t, true)

	store, err := minio.New(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, fake.madeBucket)

	uri, err := store.PutObject(context.Background(), "raw_data/hanoi.json", "application/json",
		bytes.NewReader([]byte(`{"status": "ok"}`)))
	require.NoError(t, err)
	assert.Equal(t, "s3://aqi-raw/raw_data/hanoi.json", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// Plain-HTTP uploads are aws-chunked, so the payload is framed by chunk headers.
	assert.Contains(t, string(fake.objects["raw_data/hanoi.json"]), `{"status": "ok"}`)

	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
