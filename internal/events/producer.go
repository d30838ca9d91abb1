package events

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/briefcall/marketplace/internal/circuitbreak"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type ProducerResult struct {
	Partition int32
	Offset    int64
}

type Producer struct {
	Client         sarama.SyncProducer
	Topic          string
	CircuitBreaker *gobreaker.CircuitBreaker[ProducerResult]
}

// NewProducer creates a Kafka producer for the session events topic.
func NewProducer() (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_8_0_0

	cfg.Net.SASL.Enable = true
	cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
	cfg.Net.SASL.User = config.Conf.KafkaUsername
	cfg.Net.SASL.Password = config.Conf.KafkaPassword
	cfg.Net.SASL.Handshake = true
	cfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
		return &XDGSCRAMClient{}
	}
	cfg.Producer.Return.Successes = true

	client, err := sarama.NewSyncProducer([]string{config.Conf.KafkaBootstrapServer}, cfg)
	if err != nil {
		logging.Logger.Error("Failed to create Kafka producer",
			zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Successfully connected to Kafka producer",
		zap.String("bootstrap", config.Conf.KafkaBootstrapServer),
		zap.String("mechanism", "SCRAM-SHA-512"),
	)

	return &Producer{
		Client:         client,
		Topic:          config.Conf.KafkaSessionEventsTopic,
		CircuitBreaker: newProducerCircuitBreaker(),
	}, nil
}

func newProducerCircuitBreaker() *gobreaker.CircuitBreaker[ProducerResult] {
	settings := gobreaker.Settings{
		Name:     "KafkaProducer",
		Interval: time.Duration(config.Conf.KafkaIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.KafkaConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.KafkaProducerService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[ProducerResult](settings)
}

// Publish marshals the event and sends it to the session events topic.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	result, err := p.CircuitBreaker.Execute(func() (ProducerResult, error) {
		return p.doSendMessage([]byte(event.Key()), value)
	})
	if err != nil {
		return err
	}

	logging.Logger.Debug("Event published",
		zap.String("type", event.Type),
		zap.String("key", event.Key()),
		zap.Int32("partition", result.Partition),
		zap.Int64("offset", result.Offset),
	)

	return nil
}

// Close closes the producer and releases all resources.
func (p *Producer) Close() error {
	err := p.Client.Close()
	if err != nil {
		logging.Logger.Error("Failed to close Kafka producer", zap.String("error", err.Error()))
		return err
	}

	logging.Logger.Info("Kafka producer closed successfully")

	return nil
}

func (p *Producer) doSendMessage(key, value []byte) (ProducerResult, error) {
	message := &sarama.ProducerMessage{
		Topic: p.Topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	}

	partition, offset, err := p.Client.SendMessage(message)
	if err != nil {
		logging.Logger.Error("Failed to send event to Kafka",
			zap.String("topic", p.Topic),
			zap.String("error", err.Error()),
		)

		return ProducerResult{}, err
	}

	return ProducerResult{Partition: partition, Offset: offset}, nil
}
