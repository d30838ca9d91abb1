package outbox

import (
	"context"

	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/logging"
	prometheusMarketplace "github.com/briefcall/marketplace/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OutboxService wraps a Kafka publisher with a durable fallback. A failed
// publish lands in the event_outbox table instead of surfacing to the
// lifecycle operation; the worker replays it later.
type OutboxService struct {
	Repository *OutboxRepository
	Inner      events.Publisher
}

func NewService(dbConn *gorm.DB, inner events.Publisher) *OutboxService {
	return &OutboxService{
		Repository: NewRepository(dbConn),
		Inner:      inner,
	}
}

// Publish sends the event through the inner publisher and parks it in the
// outbox when that fails. It only errors when the event can be neither
// published nor parked.
func (outboxService *OutboxService) Publish(ctx context.Context, event events.Event) error {
	publishErr := outboxService.Inner.Publish(ctx, event)
	if publishErr == nil {
		return nil
	}

	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = outboxService.Repository.CreateEvent(ctx, event.Type, msg, publishErr.Error())
	if err != nil {
		return err
	}

	logging.Logger.Info("event parked in outbox",
		zap.String("type", event.Type),
		zap.String("session_id", event.SessionID),
		zap.String("error", publishErr.Error()),
	)

	return nil
}

func (outboxService *OutboxService) ProcessPendingEvent(ctx context.Context, pendingEvent *PendingEvent) {
	err := outboxService.Repository.UpdateEventStatus(ctx, pendingEvent, StatusInProgress)
	if err != nil {
		logging.Logger.Info("failed to update outbox event to in progress", zap.String("id", pendingEvent.ID))

		return
	}

	var event events.Event

	err = json.Unmarshal(pendingEvent.Msg, &event)
	if err != nil {
		logging.Logger.Error("failed to unmarshal outbox event",
			zap.String("id", pendingEvent.ID),
			zap.String("error", err.Error()),
		)
		_ = outboxService.Repository.IncreaseRetryCount(ctx, pendingEvent, err.Error())

		return
	}

	err = outboxService.Inner.Publish(ctx, event)
	if err != nil {
		logging.Logger.Error("failed to republish outbox event",
			zap.String("id", pendingEvent.ID),
			zap.String("type", event.Type),
			zap.String("error", err.Error()),
		)
		_ = outboxService.Repository.IncreaseRetryCount(ctx, pendingEvent, err.Error())

		return
	}

	prometheusMarketplace.OutboxRetries.Inc()

	logging.Logger.Info("outbox event republished",
		zap.String("id", pendingEvent.ID),
		zap.String("type", event.Type),
	)

	err = outboxService.Repository.DeleteEvent(ctx, pendingEvent)
	if err != nil {
		logging.Logger.Info("failed to delete republished outbox event",
			zap.String("id", pendingEvent.ID),
			zap.String("error", err.Error()),
		)
	}
}
