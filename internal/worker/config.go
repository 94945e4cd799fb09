// Package worker runs background jobs for SafeRoute: pulling the incident
// feed into PostgreSQL on a schedule or on Pub/Sub request.
package worker

import "time"

// IngestConfig holds configuration for the incident ingest job.
type IngestConfig struct {
	// Timeout bounds one whole ingest run, fetch and store.
	// Default: 5 minutes
	Timeout time.Duration

	// MinRecords is the smallest feed that may replace the stored incidents.
	// Default: 1
	MinRecords int

	// MaxDrop is the largest allowed fractional drop in record count versus
	// what is stored. A feed that shrinks more than this is rejected unless
	// the run is forced. A negative value disables the check.
	// Default: 0.5
	MaxDrop float64
}

// DefaultIngestConfig returns the default ingest configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Timeout:    5 * time.Minute,
		MinRecords: 1,
		MaxDrop:    0.5,
	}
}

func (c IngestConfig) withDefaults() IngestConfig {
	d := DefaultIngestConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MinRecords <= 0 {
		c.MinRecords = d.MinRecords
	}
	if c.MaxDrop == 0 || c.MaxDrop >= 1 {
		c.MaxDrop = d.MaxDrop
	}
	return c
}
