package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-edp-api/internal/dto"
)

func TestStepEventPublisherSendsToRedisChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := client.Subscribe(ctx, "gema:test:edp")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewStepEventPublisher(client, nil, "gema:test", zerolog.Nop())
	require.NoError(t, publisher.PublishStepGraded(ctx, 7, dto.EdpStepResponse{ID: 3, StepNumber: 2, Score: 61}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event StepGradedEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	require.Equal(t, StepGradedEventType, event.Type)
	require.Equal(t, uint(7), event.OwnerID)
	require.Equal(t, uint(3), event.Step.ID)
	require.Equal(t, 61.0, event.Step.Score)
	require.NotEmpty(t, event.Source)
}

func TestStepEventPublisherWithoutTransportsIsNoop(t *testing.T) {
	publisher := NewStepEventPublisher(nil, nil, "", zerolog.Nop())
	require.NoError(t, publisher.PublishStepGraded(context.Background(), 1, dto.EdpStepResponse{}))
}

func TestStepEventPublisherReportsRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	publisher := NewStepEventPublisher(client, nil, "gema:test", zerolog.Nop())
	err := publisher.PublishStepGraded(context.Background(), 1, dto.EdpStepResponse{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis publish")
}
