package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-aqi-etl/internal/airquality"
)

type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) NewID() (string, error) {
	return "run-" + string(rune('a'+s.n.Add(1)-1)), nil
}

type resultLog struct {
	mu      sync.Mutex
	results []JobResult
}

func (r *resultLog) add(res JobResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *resultLog) count(job string, failed bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, res := range r.results {
		if res.Job == job && (res.Err != nil) == failed {
			n++
		}
	}
	return n
}

func noop(context.Context) error { return nil }

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, nil)
	require.Error(t, err)

	_, err = New([]Job{{Name: "a", Interval: 0, Run: noop}}, nil, nil)
	require.ErrorContains(t, err, "interval")

	_, err = New([]Job{{Name: "a", Interval: time.Second, Run: noop}, {Name: "a", Interval: time.Second, Run: noop}}, nil, nil)
	require.ErrorContains(t, err, "duplicate")

	_, err = New([]Job{{Name: "a", Interval: time.Second}}, nil, nil)
	require.Error(t, err)

	_, err = New([]Job{{Interval: time.Second, Run: noop}}, nil, nil)
	require.Error(t, err)
}

func TestStartRunsJobsOnIndependentIntervals(t *testing.T) {
	t.Parallel()

	var fast, slow atomic.Int64
	s, err := New([]Job{
		{Name: JobFetchAndStore, Interval: 40 * time.Millisecond, Run: func(context.Context) error { fast.Add(1); return nil }},
		{Name: JobKeepAlive, Interval: 150 * time.Millisecond, Run: func(context.Context) error { slow.Add(1); return nil }},
	}, &seqIDs{}, nil)
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State())

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StateRunning, s.State())
	require.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return fast.Load() >= 3 && slow.Load() >= 1
	}, 3*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	after := fast.Load()
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, after, fast.Load(), "no triggers after Stop")
}

func TestFailingAndPanickingJobsStayRegistered(t *testing.T) {
	t.Parallel()

	log := &resultLog{}
	s, err := New([]Job{
		{Name: "fails", Interval: 30 * time.Millisecond, Run: func(context.Context) error { return airquality.ErrDatabase }},
		{Name: "panics", Interval: 30 * time.Millisecond, Run: func(context.Context) error { panic("boom") }},
	}, nil, nil, WithResultHook(log.add))
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return log.count("fails", true) >= 3 && log.count("panics", true) >= 3
	}, 3*time.Second, 10*time.Millisecond)
}

func TestStopDrainsInFlightJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	var canceled atomic.Bool

	s, err := New([]Job{{
		Name:     JobFetchAndStore,
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			once.Do(func() { close(started) })
			time.Sleep(150 * time.Millisecond)
			canceled.Store(ctx.Err() != nil)
			finished.Store(true)
			return nil
		},
	}}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	cancel()
	s.Stop()

	assert.True(t, finished.Load(), "Stop must wait for the running job")
	assert.False(t, canceled.Load(), "job context must not be canceled by the caller")
}

func TestExecuteCapturesResult(t *testing.T) {
	t.Parallel()

	log := &resultLog{}
	s, err := New([]Job{{Name: "x", Interval: time.Hour, Run: noop}}, &seqIDs{}, nil, WithResultHook(log.add))
	require.NoError(t, err)

	var seenRunID string
	res := s.Execute(context.Background(), Job{Name: "x", Run: func(ctx context.Context) error {
		seenRunID = airquality.RunIDFrom(ctx)
		return nil
	}})
	require.NoError(t, res.Err)
	assert.Equal(t, "run-a", res.RunID)
	assert.Equal(t, "run-a", seenRunID)
	assert.False(t, res.Start.IsZero())

	res = s.Execute(context.Background(), Job{Name: "x", Run: func(context.Context) error { panic("bad") }})
	require.ErrorContains(t, res.Err, "job panicked: bad")
	assert.Equal(t, 1, log.count("x", true))
	assert.Equal(t, 1, log.count("x", false))
}

func TestStopWhenStoppedIsNoOp(t *testing.T) {
	t.Parallel()

	s, err := New([]Job{{Name: "x", Interval: time.Hour, Run: noop}}, nil, nil)
	require.NoError(t, err)
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, "stopped", s.State().String())
}
