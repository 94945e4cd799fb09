package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saferoute/saferoute/internal/incident"
	"github.com/saferoute/saferoute/internal/worker"
)

type fakeSource struct {
	name    string
	records int
	err     error
	calls   atomic.Int32
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchSnapshot(context.Context) (*incident.Snapshot, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	recs := make([]incident.Record, f.records)
	for i := range recs {
		recs[i] = incident.Record{Lat: 37.77, Lon: -122.41, Category: "Larceny Theft"}
	}
	return incident.NewSnapshot(f.name, recs), nil
}

type fakeSink struct {
	mu       sync.Mutex
	stored   *incident.Snapshot
	count    int64
	countErr error
	err      error
	writes   int
}

func (f *fakeSink) ReplaceAll(_ context.Context, s *incident.Snapshot) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.writes++
	f.stored = s
	f.count = int64(s.Len())
	return f.count, nil
}

func (f *fakeSink) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, f.countErr
}

func newJob(sink worker.Sink, sources ...incident.Provider) *worker.IngestJob {
	return worker.NewIngestJob(worker.IngestJobConfig{
		Sources: sources,
		Sink:    sink,
		Logger:  zerolog.Nop(),
	})
}

func TestDefaultIngestConfig(t *testing.T) {
	cfg := worker.DefaultIngestConfig()

	assert.Equal(t, 5*time.Minute, cfg.Timeout)
	assert.Equal(t, 1, cfg.MinRecords)
	assert.InDelta(t, 0.5, cfg.MaxDrop, 1e-12)
}

func TestIngestJob_Run_MergesSources(t *testing.T) {
	sf := &fakeSource{name: "socrata-sf", records: 3}
	ny := &fakeSource{name: "socrata-nypd", records: 2}
	sink := &fakeSink{}

	result, err := newJob(sink, sf, ny).Run(context.Background(), worker.RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total())
	assert.Equal(t, 3, result.Fetched["socrata-sf"])
	assert.Equal(t, int64(5), result.Stored)
	assert.Equal(t, int64(0), result.Previous)
	require.NotNil(t, sink.stored)
	assert.Equal(t, "socrata-nypd+socrata-sf", sink.stored.Provider)
}

func TestIngestJob_Run_SourceFailureWritesNothing(t *testing.T) {
	ok := &fakeSource{name: "ok", records: 3}
	bad := &fakeSource{name: "bad", err: errors.New("portal down")}
	sink := &fakeSink{count: 10}

	job := newJob(sink, ok, bad)
	_, err := job.Run(context.Background(), worker.RunOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetching bad")
	assert.Zero(t, sink.writes)
	assert.Equal(t, int64(1), job.GetMetrics().FailedRuns)
}

func TestIngestJob_Run_NoSources(t *testing.T) {
	_, err := newJob(&fakeSink{}).Run(context.Background(), worker.RunOptions{})
	assert.ErrorIs(t, err, worker.ErrNoSources)
}

func TestIngestJob_Run_EmptyFeedRejected(t *testing.T) {
	sink := &fakeSink{}
	job := newJob(sink, &fakeSource{name: "empty"})

	_, err := job.Run(context.Background(), worker.RunOptions{})

	assert.ErrorIs(t, err, worker.ErrTooFewRecords)
	assert.Zero(t, sink.writes)
	assert.Equal(t, int64(1), job.GetMetrics().RejectedRuns)
}

func TestIngestJob_Run_DropCheck(t *testing.T) {
	src := &fakeSource{name: "feed", records: 40}
	sink := &fakeSink{count: 100}
	job := newJob(sink, src)

	_, err := job.Run(context.Background(), worker.RunOptions{})
	assert.ErrorIs(t, err, worker.ErrSuspiciousDrop)
	assert.Zero(t, sink.writes)

	result, err := job.Run(context.Background(), worker.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Previous)
	assert.Equal(t, int64(40), result.Stored)
}

func TestIngestJob_Run_DropWithinLimit(t *testing.T) {
	sink := &fakeSink{count: 100}
	_, err := newJob(sink, &fakeSource{name: "feed", records: 60}).Run(context.Background(), worker.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, sink.writes)
}

func TestIngestJob_Run_CountErrorSkipsDropCheck(t *testing.T) {
	sink := &fakeSink{count: 100, countErr: errors.New("count failed")}
	result, err := newJob(sink, &fakeSource{name: "feed", records: 1}).Run(context.Background(), worker.RunOptions{})

	require.NoError(t, err)
	assert.Equal(t, int64(-1), result.Previous)
}

func TestIngestJob_Run_SinkError(t *testing.T) {
	sink := &fakeSink{err: errors.New("copy failed")}
	job := newJob(sink, &fakeSource{name: "feed", records: 5})

	_, err := job.Run(context.Background(), worker.RunOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storing incidents")
	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.FailedRuns)
	assert.Contains(t, m.LastError, "copy failed")
}

func TestIngestJob_Metrics(t *testing.T) {
	job := newJob(&fakeSink{}, &fakeSource{name: "feed", records: 7})

	_, err := job.Run(context.Background(), worker.RunOptions{})
	require.NoError(t, err)

	m := job.GetMetrics()
	assert.Equal(t, int64(1), m.TotalRuns)
	assert.Equal(t, int64(1), m.SuccessfulRuns)
	assert.Equal(t, int64(7), m.LastRecords)
	assert.False(t, m.LastSuccessAt.IsZero())
	assert.Empty(t, m.LastError)

	snap := job.MetricsSnapshot()
	assert.Equal(t, int64(1), snap["total_runs"])
	assert.Equal(t, int64(7), snap["last_records"])
}

func TestIngestJob_RunEvery(t *testing.T) {
	src := &fakeSource{name: "feed", records: 2}
	job := newJob(&fakeSink{}, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.RunEvery(ctx, 10*time.Millisecond) }()

	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunEvery did not stop after cancel")
	}
}

func TestIngestJob_RunEvery_RejectsBadInterval(t *testing.T) {
	err := newJob(&fakeSink{}).RunEvery(context.Background(), 0)
	assert.Error(t, err)
}
