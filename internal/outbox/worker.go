package outbox

import (
	"context"
	"time"

	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OutboxWorker struct {
	WorkerPool    *ants.Pool
	OutboxService *OutboxService
	Repository    *OutboxRepository
}

func NewWorker(outboxService *OutboxService, dbConn *gorm.DB) (*OutboxWorker, error) {
	workerPool, err := ants.NewPool(config.Conf.OutboxPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &OutboxWorker{
		WorkerPool:    workerPool,
		OutboxService: outboxService,
		Repository:    NewRepository(dbConn),
	}, nil
}

func (outboxWorker *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.Conf.OutboxInterval) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outboxWorker.processPendingEvents(ctx)
		}
	}
}

func (outboxWorker *OutboxWorker) processPendingEvents(ctx context.Context) {
	pendingEvents, err := outboxWorker.Repository.GetPendingEvents(ctx)
	if err != nil {
		return
	}

	if len(pendingEvents) == 0 {
		return
	}

	logging.Logger.Info("start replaying outbox events", zap.Int("count", len(pendingEvents)))

	for idx := range pendingEvents {
		pendingEvent := pendingEvents[idx]

		err := outboxWorker.WorkerPool.Submit(func() {
			outboxWorker.OutboxService.ProcessPendingEvent(ctx, &pendingEvent)
		})
		if err != nil {
			logging.Logger.Error("failed to submit outbox worker pool",
				zap.String("id", pendingEvent.ID),
				zap.String("error", err.Error()),
			)
		}
	}
}
