package healthchecker

import (
	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/logging"
	"go.uber.org/zap"
)

func CheckKafkaProducer() error {
	producer, err := events.NewProducer()
	if err != nil {
		logging.Logger.Error("failed to create new kafka producer client", zap.String("error", err.Error()))

		return err
	}

	return producer.Close()
}
