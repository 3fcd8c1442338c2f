package storage_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-aqi-etl/internal/storage"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/local"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/memory"
)

func TestOpenLocal(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data_lake", "raw_data")

	store, err := storage.Open(context.Background(), storage.Config{Provider: storage.ProviderLocal, BaseDir: dir})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &local.BlobStore{}, store)

	uri, err := store.PutObject(context.Background(), "a.json", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	assert.Contains(t, uri, "a.json")
}

func TestOpenMemory(t *testing.T) {
	store, err := storage.Open(context.Background(), storage.Config{Provider: storage.ProviderMemory})
	require.NoError(t, err)
	assert.IsType(t, &memory.BlobStore{}, store)
}

func TestOpenErrors(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Config{Provider: "s4"})
	require.ErrorContains(t, err, "unknown archive provider")

	_, err = storage.Open(context.Background(), storage.Config{Provider: storage.ProviderGCS})
	require.ErrorContains(t, err, "gcs_bucket")

	_, err = storage.Open(context.Background(), storage.Config{Provider: storage.ProviderMinIO})
	require.Error(t, err)

	_, err = storage.Open(context.Background(), storage.Config{Provider: storage.ProviderLocal})
	require.Error(t, err)
}
