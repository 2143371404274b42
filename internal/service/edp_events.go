package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-edp-api/internal/dto"
)

// StepGradedEventType identifies graded step events on the wire.
const StepGradedEventType = "step.graded"

// StepGradedEvent is broadcast after a submission has been graded and stored.
type StepGradedEvent struct {
	Type    string              `json:"type"`
	Source  string              `json:"source"`
	OwnerID uint                `json:"owner_id"`
	Step    dto.EdpStepResponse `json:"step"`
	SentAt  time.Time           `json:"sent_at"`
}

// StepEventPublisher fans out graded step events to realtime consumers.
type StepEventPublisher interface {
	PublishStepGraded(ctx context.Context, ownerID uint, step dto.EdpStepResponse) error
}

type stepEventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	nodeID       string
	now          func() time.Time
}

// NewStepEventPublisher publishes to "<channelBase>:edp" on Redis and
// "<channelBase with dots>.edp" on NATS. Nil transports are skipped.
func NewStepEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) StepEventPublisher {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":edp"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".edp"
	}

	return &stepEventPublisher{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "edp_events").Logger(),
		nodeID:       uuid.NewString(),
		now:          time.Now,
	}
}

func (p *stepEventPublisher) PublishStepGraded(ctx context.Context, ownerID uint, step dto.EdpStepResponse) error {
	payload, err := json.Marshal(StepGradedEvent{
		Type:    StepGradedEventType,
		Source:  p.nodeID,
		OwnerID: ownerID,
		Step:    step,
		SentAt:  p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode step event: %w", err)
	}

	var errs []error
	if p.redis != nil && p.redisChannel != "" {
		if err := p.redis.Publish(ctx, p.redisChannel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis publish: %w", err))
		}
	}
	if p.nats != nil && p.natsSubject != "" {
		if err := p.nats.Publish(p.natsSubject, payload); err != nil {
			errs = append(errs, fmt.Errorf("nats publish: %w", err))
		}
	}

	return errors.Join(errs...)
}
