package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockOutboxRepository is a mock for the outbox repository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func sessionEvent(eventType string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "session",
		AggregateID:   uuid.NewString(),
		EventType:     eventType,
		Payload:       json.RawMessage(`{"pages_scraped":3,"quotes_added":27}`),
		TargetStream:  DefaultSessionStream,
	}
}

func TestRelayProcessEvents(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	t.Run("successfully relay events", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		events := []*OutboxEvent{
			sessionEvent("SESSION_STARTED"),
			sessionEvent("SESSION_COMPLETED"),
		}

		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)
		for _, event := range events {
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == event.TargetStream
			})).Return(nil).Once()
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil).Once()
		}

		err := relay.processEvents(ctx)
		assert.NoError(t, err)

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("publish failure marks event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		event := sessionEvent("SESSION_COMPLETED")
		pubErr := errors.New("stream unavailable")

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(pubErr)
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.Anything).Return(nil)

		err := relay.processEvents(ctx)
		assert.NoError(t, err, "a single event failure does not abort the batch")

		mockOutbox.AssertCalled(t, "MarkFailed", ctx, event.ID, mock.Anything)
		mockOutbox.AssertNotCalled(t, "MarkProcessed", ctx, event.ID)
	})

	t.Run("no pending events is a no-op", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		err := relay.processEvents(ctx)
		assert.NoError(t, err)
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("outbox query failure surfaces", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)

		relay := &Relay{
			redis:     mockRedis,
			outbox:    mockOutbox,
			logger:    logger,
			batchSize: 10,
		}

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("connection lost"))

		err := relay.processEvents(ctx)
		assert.Error(t, err)
	})
}

func TestRelayStreamPayloadShape(t *testing.T) {
	mockRedis := new(MockRedisClient)
	relay := &Relay{
		redis:  mockRedis,
		logger: slog.Default(),
	}

	event := sessionEvent("SESSION_COMPLETED")

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*redis.XAddArgs)
	}).Return(nil)

	err := relay.publishToRedis(context.Background(), event)
	assert.NoError(t, err)

	values := captured.Values.(map[string]interface{})
	assert.Equal(t, "SESSION_COMPLETED", values["type"])
	assert.Equal(t, event.ID.String(), values["original_id"])

	var data map[string]interface{}
	assert.NoError(t, json.Unmarshal([]byte(values["data"].(string)), &data))
	assert.Equal(t, "session", data["aggregate_type"])
}
