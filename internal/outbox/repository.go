package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/database"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidPendingEventResult      = errors.New("invalid result type, it should be pointer to PendingEvent")
	ErrInvalidPendingEventSliceResult = errors.New("invalid result type, it should be slice of PendingEvent")
)

type OutboxRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *OutboxRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &OutboxRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

func (outboxRepository *OutboxRepository) CreateEvent(
	ctx context.Context,
	eventType string,
	msg []byte,
	errMsg string,
) (*PendingEvent, error) {
	result, err := outboxRepository.CircuitBreaker.Execute(func() (any, error) {
		now := time.Now()
		pendingEvent := PendingEvent{
			ID:          uuid.New().String(),
			EventType:   eventType,
			Msg:         msg,
			Error:       errMsg,
			Status:      StatusPending,
			LastRetryAt: &now,
		}

		var dbConn *gorm.DB

		select {
		case <-ctx.Done():
			dbConn = outboxRepository.DBConn
		default:
			dbConn = outboxRepository.DBConn.WithContext(ctx)
		}

		err := dbConn.Create(&pendingEvent).Error
		if err != nil {
			logging.Logger.Error("failed to create outbox record",
				zap.String("event_type", eventType),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &pendingEvent, nil
	})
	if err != nil {
		return nil, err
	}

	pendingEvent, ok := result.(*PendingEvent)
	if !ok {
		return nil, ErrInvalidPendingEventResult
	}

	return pendingEvent, nil
}

func (outboxRepository *OutboxRepository) GetPendingEvents(ctx context.Context) ([]PendingEvent, error) {
	result, err := outboxRepository.CircuitBreaker.Execute(func() (any, error) {
		var records []PendingEvent

		err := outboxRepository.DBConn.WithContext(ctx).
			Where(
				"status = ? AND last_retry_at <= ? AND retry_count < ?",
				StatusPending,
				time.Now().Add(-time.Duration(config.Conf.OutboxRetryDelay)*time.Minute),
				config.Conf.OutboxMaxRetries,
			).
			Order("created_at ASC").
			Limit(config.Conf.OutboxLimit).
			Find(&records).Error
		if err != nil {
			logging.Logger.Info("failed to fetch pending outbox events", zap.String("error", err.Error()))

			return nil, err
		}

		return records, err
	})
	if err != nil {
		return nil, err
	}

	records, ok := result.([]PendingEvent)
	if !ok {
		return nil, ErrInvalidPendingEventSliceResult
	}

	return records, nil
}

func (outboxRepository *OutboxRepository) UpdateEventStatus(
	ctx context.Context,
	pendingEvent *PendingEvent,
	status string,
) error {
	_, err := outboxRepository.CircuitBreaker.Execute(func() (any, error) {
		err := outboxRepository.DBConn.
			WithContext(ctx).
			Model(pendingEvent).
			Where("id = ?", pendingEvent.ID).
			Update("status", status).Error
		if err != nil {
			return nil, err
		}

		return pendingEvent, nil
	})

	return err
}

func (outboxRepository *OutboxRepository) IncreaseRetryCount(
	ctx context.Context,
	pendingEvent *PendingEvent,
	errMsg string,
) error {
	_, err := outboxRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": time.Now(),
			"status":        StatusPending,
			"error":         errMsg,
		}

		err := outboxRepository.DBConn.WithContext(ctx).
			Model(pendingEvent).
			Where("id = ?", pendingEvent.ID).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("failed to increase outbox retry count",
				zap.String("id", pendingEvent.ID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return pendingEvent, nil
	})

	return err
}

func (outboxRepository *OutboxRepository) DeleteEvent(ctx context.Context, pendingEvent *PendingEvent) error {
	_, err := outboxRepository.CircuitBreaker.Execute(func() (any, error) {
		err := outboxRepository.DBConn.WithContext(ctx).
			Where("id = ?", pendingEvent.ID).
			Delete(pendingEvent).
			Error

		return nil, err
	})

	return err
}
