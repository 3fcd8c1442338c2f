package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

type fakeResponse struct {
	status int
	body   string
	err    error
}

type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	urls      []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req airquality.FetchRequest) (airquality.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, req.URL)
	resp, ok := f.responses[req.City]
	if !ok {
		return airquality.FetchResponse{StatusCode: http.StatusNotFound}, nil
	}
	if resp.err != nil {
		return airquality.FetchResponse{}, resp.err
	}
	return airquality.FetchResponse{StatusCode: resp.status, Body: []byte(resp.body)}, nil
}

type archiveCall struct {
	city string
	body string
}

type fakeArchiver struct {
	mu    sync.Mutex
	calls []archiveCall
	err   error
}

func (f *fakeArchiver) Archive(_ context.Context, city string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", fmt.Errorf("%w: %w", airquality.ErrStorageWrite, f.err)
	}
	f.calls = append(f.calls, archiveCall{city: city, body: string(body)})
	return "memory://" + city, nil
}

func (f *fakeArchiver) cities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.city)
	}
	return out
}

// fakeRecordStore keeps rows keyed by natural key, mirroring ON CONFLICT semantics.
type fakeRecordStore struct {
	mu          sync.Mutex
	rows        map[airquality.NaturalKey]airquality.Record
	upserts     int
	livenessErr error
	upsertErr   error
	probes      int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{rows: make(map[airquality.NaturalKey]airquality.Record)}
}

func (s *fakeRecordStore) Upsert(_ context.Context, batch *airquality.Batch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	for _, rec := range batch.Records {
		s.rows[rec.Key()] = rec
	}
	return batch.Len(), nil
}

func (s *fakeRecordStore) Liveness(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes++
	return s.livenessErr
}

type fakeIDs struct{}

func (fakeIDs) NewID() (string, error) { return "run-generated", nil }

func feedBody(station, pm25, ts string) string {
	return fmt.Sprintf(`{"status":"ok","data":{"city":{"name":%q,"geo":[1,2]},"aqi":"10",`+
		`"iaqi":{"pm25":{"v":%s}},"dominentpol":"pm25","time":{"s":%q}}}`, station, pm25, ts)
}

var errNetwork = errors.New("dial tcp: connection refused")
