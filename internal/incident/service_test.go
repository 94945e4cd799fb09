package incident_test

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
)

type mockProvider struct {
	mu         sync.Mutex
	snapshot   *incident.Snapshot
	err        error
	fetchCount atomic.Int32
}

func (m *mockProvider) FetchSnapshot(_ context.Context) (*incident.Snapshot, error) {
	m.fetchCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func testSnapshot() *incident.Snapshot {
	return incident.NewSnapshot("mock", []incident.Record{
		{Lat: 37.7749, Lon: -122.4194, Category: "Assault", OccurredAt: time.Now().Add(-2 * time.Hour)},
		{Lat: 37.7751, Lon: -122.4190, Category: "Larceny Theft", OccurredAt: time.Now().Add(-time.Hour)},
		{Lat: 37.7760, Lon: -122.4180, Category: "Assault", OccurredAt: time.Now()},
	})
}

func TestService_Current_CachesSnapshot(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	first, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Len(t, first.Records, 3)

	second, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), provider.fetchCount.Load())
}

func TestService_Current_RefreshesAfterExpiry(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: 10 * time.Millisecond,
	})

	_, err := svc.Current(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), provider.fetchCount.Load())
}

func TestService_Refresh_Forces(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Current(context.Background())
	require.NoError(t, err)
	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), provider.fetchCount.Load())
}

func TestService_StaleIfError(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider:        provider,
		Logger:          zerolog.Nop(),
		CacheTTL:        time.Millisecond,
		StaleIfErrorTTL: time.Hour,
	})

	original, err := svc.Current(context.Background())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	provider.setErr(errors.New("feed down"))

	stale, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, original, stale)

	status := svc.Status()
	assert.True(t, status.HasData)
	assert.Equal(t, "feed down", status.LastError)
}

func TestService_RefreshReportsFeedFailure(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider:        provider,
		Logger:          zerolog.Nop(),
		StaleIfErrorTTL: time.Hour,
	})

	held, err := svc.Current(context.Background())
	require.NoError(t, err)

	provider.setErr(errors.New("feed down"))
	refreshed, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, incident.ErrProviderUnavailable)
	assert.Nil(t, refreshed)

	current, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Same(t, held, current, "the held snapshot survives a failed refresh")
	assert.Equal(t, "feed down", svc.Status().LastError)
}

func TestService_ErrorWithoutData(t *testing.T) {
	provider := &mockProvider{err: errors.New("feed down")}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, incident.ErrProviderUnavailable)
	assert.False(t, svc.Status().HasData)
}

func TestService_ErrorAfterStaleWindow(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider:        provider,
		Logger:          zerolog.Nop(),
		CacheTTL:        time.Millisecond,
		StaleIfErrorTTL: 2 * time.Millisecond,
	})

	_, err := svc.Current(context.Background())
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	provider.setErr(errors.New("feed down"))

	_, err = svc.Current(context.Background())
	assert.ErrorIs(t, err, incident.ErrProviderUnavailable)
}

func TestService_RefreshReplacesWholesale(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	before, err := svc.Current(context.Background())
	require.NoError(t, err)

	provider.mu.Lock()
	provider.snapshot = incident.NewSnapshot("mock", []incident.Record{
		{Lat: 40.7128, Lon: -74.0060, Category: "Robbery"},
	})
	provider.mu.Unlock()

	after, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, before.Records, 3, "previously returned snapshot must not change")
	assert.Len(t, after.Records, 1)
}

func TestService_Status(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	status := svc.Status()
	assert.False(t, status.HasData)

	_, err := svc.Current(context.Background())
	require.NoError(t, err)

	status = svc.Status()
	assert.True(t, status.HasData)
	assert.Equal(t, 3, status.Records)
	assert.Equal(t, "mock", status.Provider)
	assert.False(t, status.IsExpired)
	assert.False(t, status.IsStale)
	assert.Empty(t, status.LastError)
}

func TestService_ConcurrentCurrent(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Current(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), provider.fetchCount.Load())
}

type blockingProvider struct {
	snapshot *incident.Snapshot
	release  chan struct{}
	started  chan struct{}
}

func (b *blockingProvider) FetchSnapshot(ctx context.Context) (*incident.Snapshot, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return b.snapshot, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingProvider) Name() string { return "blocking" }

func TestService_ReadersNotBlockedByRefresh(t *testing.T) {
	provider := &blockingProvider{
		snapshot: testSnapshot(),
		release:  make(chan struct{}),
		started:  make(chan struct{}, 2),
	}
	svc := incident.NewService(incident.ServiceConfig{Provider: provider, Logger: zerolog.Nop()})

	// Load the first snapshot.
	go func() { <-provider.started; provider.release <- struct{}{} }()
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Refresh(context.Background())
	}()
	<-provider.started

	// The forced refresh is mid-fetch; cached reads must still return.
	snap, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Records, 3)
	assert.True(t, svc.Status().HasData)

	provider.release <- struct{}{}
	<-done
}

func TestService_KeepFresh(t *testing.T) {
	provider := &mockProvider{snapshot: testSnapshot()}
	svc := incident.NewService(incident.ServiceConfig{
		Provider: provider,
		Logger:   zerolog.Nop(),
		CacheTTL: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.KeepFresh(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool { return provider.fetchCount.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, svc.Status().HasData)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("KeepFresh did not return after cancel")
	}
}
