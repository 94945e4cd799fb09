package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
)

// Job types carried in JobMessage.JobType.
const (
	JobIncidentIngest = "incident_ingest"
	JobHealthCheck    = "health_check"
)

// Pinger checks a dependency is reachable, e.g. *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// JobMessage is the payload published to the worker subscription.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Force skips the ingest drop check.
	Force bool `json:"force,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// An ingest holds a message for the length of a feed download.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.logger.Debug().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Msg("received pubsub message")

		if h.dispatcher.Handle(ctx, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

// Dispatcher routes decoded job messages to the ingest job and health checks.
type Dispatcher struct {
	ingest   *IngestJob
	db       Pinger
	registry *resilience.Registry
	logger   zerolog.Logger
}

// DispatcherConfig holds the dispatcher's collaborators. DB and Registry are optional.
type DispatcherConfig struct {
	Ingest   *IngestJob
	DB       Pinger
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		ingest:   cfg.Ingest,
		db:       cfg.DB,
		registry: cfg.Registry,
		logger:   cfg.Logger,
	}
}

// Handle processes one raw message and reports whether it should be acked.
// Malformed payloads and failed jobs are nacked; unknown job types are
// acked so they are not redelivered forever.
func (d *Dispatcher) Handle(ctx context.Context, data []byte) bool {
	startTime := time.Now()
	logger := d.logger

	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Error().Err(err).Msg("failed to parse message")
		return false
	}

	var err error
	switch msg.JobType {
	case JobIncidentIngest:
		err = d.handleIngest(ctx, msg)
	case JobHealthCheck:
		err = d.handleHealthCheck(ctx)
	default:
		logger.Warn().Str("job_type", msg.JobType).Msg("unknown job type")
		return true
	}

	if err != nil {
		logger.Error().Err(err).Str("job_type", msg.JobType).Msg("job failed")
		return false
	}

	logger.Info().
		Str("job_type", msg.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return true
}

func (d *Dispatcher) handleIngest(ctx context.Context, msg JobMessage) error {
	if d.ingest == nil {
		return errors.New("ingest job not configured")
	}
	_, err := d.ingest.Run(ctx, RunOptions{Force: msg.Force})
	return err
}

// handleHealthCheck verifies the database answers and no provider circuit is open.
func (d *Dispatcher) handleHealthCheck(ctx context.Context) error {
	if d.db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := d.db.Ping(pingCtx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
	}

	if d.registry != nil {
		for _, h := range d.registry.GetAllHealth() {
			if h.Status() == resilience.StatusUnhealthy {
				return fmt.Errorf("provider %s circuit is open: %s", h.Name, h.LastError)
			}
		}
	}
	return nil
}
