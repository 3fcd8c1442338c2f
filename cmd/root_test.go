package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
	"github.com/JakeFAU/realtime-aqi-etl/internal/app"
	"github.com/JakeFAU/realtime-aqi-etl/internal/config"
	"github.com/JakeFAU/realtime-aqi-etl/internal/storage/postgres"
)

type recordingStore struct {
	mu       sync.Mutex
	batches  []*airquality.Batch
	liveness int
	failWith error
}

func (s *recordingStore) Upsert(_ context.Context, batch *airquality.Batch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return 0, s.failWith
	}
	s.batches = append(s.batches, batch)
	return batch.Len(), nil
}

func (s *recordingStore) Liveness(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.liveness++
	return nil
}

func (s *recordingStore) Close() {}

func (s *recordingStore) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches), s.liveness
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/feed/hanoi/":
			_, _ = w.Write([]byte(`{"status":"ok","data":{"city":{"name":"Hanoi","geo":[21.03,105.85]},` +
				`"aqi":"42","iaqi":{"pm25":{"v":30},"t":{"v":"-"}},"dominentpol":"pm25",` +
				`"time":{"s":"2024-01-01 08:00:00"}}}`))
		case "/feed/da-nang/":
			_, _ = w.Write([]byte(`{"status":"error","data":"Unknown station"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL, cities, extra string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	lake := filepath.Join(dir, "lake")
	body := fmt.Sprintf(`api:
  token: test-token
  base_url: %s
  timeout: 5s
cities: [%s]
archive:
  provider: local
  base_dir: %s
logging:
  development: false
  level: error
%s`, baseURL, cities, lake, extra)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, lake
}

func useStore(t *testing.T, store *recordingStore) {
	t.Helper()
	prev := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, logger,
			app.WithStoreFactory(func(context.Context, postgres.RecordStoreConfig, *zap.Logger) (app.Store, error) {
				return store, nil
			}),
		)
	}
	t.Cleanup(func() { newApp = prev })
}

func execute(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestFetchPrintsBatch(t *testing.T) {
	feed := newFeedServer(t)
	store := &recordingStore{}
	useStore(t, store)
	path, lake := writeConfig(t, feed.URL, "hanoi, da-nang, nowhere", "")

	out, err := execute(t, context.Background(), "fetch", "--config", path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "station"))
	assert.Contains(t, lines[1], "Hanoi")
	assert.Contains(t, lines[1], "2024-01-01 08:00:00")
	assert.Contains(t, lines[1], "NaN")

	entries, err := os.ReadDir(filepath.Join(lake, "raw_data"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "hanoi and the rejected da-nang payload are archived")

	batches, _ := store.counts()
	assert.Zero(t, batches)
}

func TestFetchNoData(t *testing.T) {
	feed := newFeedServer(t)
	useStore(t, &recordingStore{})
	path, _ := writeConfig(t, feed.URL, "nowhere", "")

	out, err := execute(t, context.Background(), "fetch", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "No data fetched.\n", out)
}

func TestStoreAndKeepAlive(t *testing.T) {
	feed := newFeedServer(t)
	store := &recordingStore{}
	useStore(t, store)
	path, _ := writeConfig(t, feed.URL, "hanoi", "")

	_, err := execute(t, context.Background(), "store", "--config", path)
	require.NoError(t, err)
	_, err = execute(t, context.Background(), "keepalive", "--config", path)
	require.NoError(t, err)

	batches, liveness := store.counts()
	assert.Equal(t, 1, batches)
	assert.Equal(t, 1, liveness)
	assert.Equal(t, []string{"hanoi"}, store.batches[0].Cities())
}

func TestOneShotFailuresExitCleanly(t *testing.T) {
	feed := newFeedServer(t)
	useStore(t, &recordingStore{failWith: errors.New("connection refused")})
	path, _ := writeConfig(t, feed.URL, "hanoi", "")

	_, err := execute(t, context.Background(), "store", "--config", path)
	require.NoError(t, err)
	_, err = execute(t, context.Background(), "keepalive", "--config", path)
	require.NoError(t, err)
}

func TestConfigErrors(t *testing.T) {
	useStore(t, &recordingStore{})

	_, err := execute(t, context.Background(), "fetch", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")

	path, _ := writeConfig(t, "http://feed.test", "hanoi", "")
	_, err = execute(t, context.Background(), "schedule", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestScheduleRunsUntilCanceled(t *testing.T) {
	feed := newFeedServer(t)
	store := &recordingStore{}
	useStore(t, store)
	path, _ := writeConfig(t, feed.URL, "hanoi", `schedule:
  poll_interval: 50ms
  keepalive_interval: 30ms
server:
  addr: ""
`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := execute(t, ctx, "schedule", "--config", path)
		done <- err
	}()

	require.Eventually(t, func() bool {
		batches, liveness := store.counts()
		return batches >= 1 && liveness >= 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("schedule did not stop")
	}
}

func TestPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBatch(&buf, nil))
	assert.Equal(t, "No data fetched.\n", buf.String())

	aqi := 42.5
	buf.Reset()
	require.NoError(t, printBatch(&buf, &airquality.Batch{Records: []airquality.Record{{
		Station:     "Hanoi",
		City:        "hanoi",
		AQI:         &aqi,
		Dominentpol: "pm25",
		Timestamp:   time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	}}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	assert.Equal(t, []string{"Hanoi", "hanoi", "42.5"}, fields[:3])
	assert.Equal(t, "08:00:00", fields[len(fields)-1])
}
