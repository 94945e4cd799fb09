package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/saferoute/saferoute/internal/incident"
)

// Ingest errors.
var (
	ErrNoSources      = errors.New("no incident sources configured")
	ErrTooFewRecords  = errors.New("incident feed returned too few records")
	ErrSuspiciousDrop = errors.New("incident feed shrank beyond the allowed drop")
)

// Sink stores an ingested snapshot, replacing what was there.
type Sink interface {
	ReplaceAll(ctx context.Context, snapshot *incident.Snapshot) (int64, error)
}

// Counter is implemented by sinks that can report how many records they hold.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// IngestJob fetches every source and writes the merged feed to the sink.
type IngestJob struct {
	config  IngestConfig
	sources []incident.Provider
	sink    Sink
	logger  zerolog.Logger

	// Serializes runs; a ticker run and a Pub/Sub run must not interleave.
	runMu sync.Mutex

	metrics *IngestMetrics
}

// IngestMetrics tracks ingest job statistics.
type IngestMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	SuccessfulRuns int64
	FailedRuns     int64
	RejectedRuns   int64

	LastRunAt       time.Time
	LastSuccessAt   time.Time
	LastRunDuration time.Duration
	LastRecords     int64
	LastError       string
}

// IngestJobConfig holds configuration for creating an IngestJob.
type IngestJobConfig struct {
	Config  IngestConfig
	Sources []incident.Provider
	Sink    Sink
	Logger  zerolog.Logger
}

// NewIngestJob creates a new ingest job.
func NewIngestJob(cfg IngestJobConfig) *IngestJob {
	return &IngestJob{
		config:  cfg.Config.withDefaults(),
		sources: cfg.Sources,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		metrics: &IngestMetrics{},
	}
}

// IngestResult contains the result of one ingest run.
type IngestResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	// Fetched counts usable records per source name.
	Fetched map[string]int

	// Previous is the stored count before the run, -1 when unknown.
	Previous int64
	Stored   int64
}

// Total returns the number of records fetched across all sources.
func (r *IngestResult) Total() int {
	n := 0
	for _, c := range r.Fetched {
		n += c
	}
	return n
}

// RunOptions tweak a single ingest run.
type RunOptions struct {
	// Force skips the drop check.
	Force bool
}

// Run fetches all sources concurrently and replaces the stored feed with
// their union. Nothing is written unless every source succeeds.
func (j *IngestJob) Run(ctx context.Context, opts RunOptions) (*IngestResult, error) {
	j.runMu.Lock()
	defer j.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	result := &IngestResult{StartTime: time.Now(), Previous: -1}
	err := j.run(ctx, opts, result)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	j.updateMetrics(result, err)

	if err != nil {
		j.logger.Error().
			Err(err).
			Dur("duration", result.Duration).
			Int("fetched", result.Total()).
			Int64("previous", result.Previous).
			Msg("incident ingest failed")
		return result, err
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("fetched", result.Total()).
		Int64("stored", result.Stored).
		Int64("previous", result.Previous).
		Msg("incident ingest completed")
	return result, nil
}

func (j *IngestJob) run(ctx context.Context, opts RunOptions, result *IngestResult) error {
	if len(j.sources) == 0 {
		return ErrNoSources
	}

	snapshot, fetched, err := j.fetchAll(ctx)
	result.Fetched = fetched
	if err != nil {
		return err
	}

	if snapshot.Len() < j.config.MinRecords {
		return fmt.Errorf("%w: got %d, need %d", ErrTooFewRecords, snapshot.Len(), j.config.MinRecords)
	}

	if c, ok := j.sink.(Counter); ok {
		prev, err := c.Count(ctx)
		if err != nil {
			j.logger.Warn().Err(err).Msg("could not count stored incidents, skipping drop check")
		} else {
			result.Previous = prev
		}
	}
	if !opts.Force && j.config.MaxDrop > 0 && result.Previous > 0 {
		floor := float64(result.Previous) * (1 - j.config.MaxDrop)
		if float64(snapshot.Len()) < floor {
			return fmt.Errorf("%w: %d stored, %d fetched", ErrSuspiciousDrop, result.Previous, snapshot.Len())
		}
	}

	stored, err := j.sink.ReplaceAll(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("storing incidents: %w", err)
	}
	result.Stored = stored
	return nil
}

// fetchAll fetches every source concurrently and merges the records.
func (j *IngestJob) fetchAll(ctx context.Context) (*incident.Snapshot, map[string]int, error) {
	snapshots := make([]*incident.Snapshot, len(j.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range j.sources {
		g.Go(func() error {
			s, err := src.FetchSnapshot(gctx)
			if err != nil {
				return fmt.Errorf("fetching %s: %w", src.Name(), err)
			}
			snapshots[i] = s
			return nil
		})
	}
	err := g.Wait()

	fetched := make(map[string]int, len(j.sources))
	var (
		records []incident.Record
		names   []string
	)
	for i, s := range snapshots {
		if s == nil {
			continue
		}
		name := j.sources[i].Name()
		fetched[name] += s.Len()
		records = append(records, s.Records...)
		names = append(names, name)
	}
	if err != nil {
		return nil, fetched, err
	}

	sort.Strings(names)
	return incident.NewSnapshot(strings.Join(names, "+"), records), fetched, nil
}

// RunEvery runs the job immediately and then once per interval until ctx is done.
// Failed runs are logged and retried on the next tick.
func (j *IngestJob) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("ingest interval must be positive, got %s", interval)
	}

	_, _ = j.Run(ctx, RunOptions{})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _ = j.Run(ctx, RunOptions{})
		}
	}
}

func (j *IngestJob) updateMetrics(result *IngestResult, err error) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration

	switch {
	case err == nil:
		j.metrics.SuccessfulRuns++
		j.metrics.LastSuccessAt = result.EndTime
		j.metrics.LastRecords = result.Stored
		j.metrics.LastError = ""
	case errors.Is(err, ErrTooFewRecords), errors.Is(err, ErrSuspiciousDrop):
		j.metrics.RejectedRuns++
		j.metrics.LastError = err.Error()
	default:
		j.metrics.FailedRuns++
		j.metrics.LastError = err.Error()
	}
}

// GetMetrics returns a copy of the current metrics.
func (j *IngestJob) GetMetrics() IngestMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return IngestMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		SuccessfulRuns:  j.metrics.SuccessfulRuns,
		FailedRuns:      j.metrics.FailedRuns,
		RejectedRuns:    j.metrics.RejectedRuns,
		LastRunAt:       j.metrics.LastRunAt,
		LastSuccessAt:   j.metrics.LastSuccessAt,
		LastRunDuration: j.metrics.LastRunDuration,
		LastRecords:     j.metrics.LastRecords,
		LastError:       j.metrics.LastError,
	}
}

// MetricsSnapshot returns the current metrics as a map for the health endpoint.
func (j *IngestJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"successful_runs":   m.SuccessfulRuns,
		"failed_runs":       m.FailedRuns,
		"rejected_runs":     m.RejectedRuns,
		"last_run_at":       m.LastRunAt,
		"last_success_at":   m.LastSuccessAt,
		"last_run_duration": m.LastRunDuration.String(),
		"last_records":      m.LastRecords,
		"last_error":        m.LastError,
	}
}
