package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/briefcall/marketplace/internal/circuitbreak"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	prometheusMarketplace "github.com/briefcall/marketplace/internal/prometheus"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

var ErrBucketMissing = errors.New("artifact bucket does not exist")

// Client archives session documents (problem briefs and post-session notes)
// as JSON objects in object storage. Archival is best-effort on the write
// path; losing an artifact never fails a lifecycle operation.
type Client struct {
	Client         *minio.Client
	CircuitBreaker *gobreaker.CircuitBreaker[any]
	BucketName     string
	PathPrefix     string
}

func NewClient(accessKey, secretKey, bucketName, pathPrefix, cbService string) (*Client, error) {
	endpointURL := config.Conf.MinioEndpointURL

	client, err := minio.New(endpointURL, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
	})
	if err != nil {
		logging.Logger.Error("Failed to initialize artifact storage client",
			zap.String("error", err.Error()),
		)

		return nil, err
	}

	logging.Logger.Info("Connected to artifact storage",
		zap.String("endpoint", endpointURL),
		zap.String("bucket", bucketName),
	)

	return &Client{
		Client:         client,
		CircuitBreaker: newCircuitBreaker(cbService),
		BucketName:     bucketName,
		PathPrefix:     pathPrefix,
	}, nil
}

func newCircuitBreaker(cbService string) *gobreaker.CircuitBreaker[any] {
	settings := gobreaker.Settings{
		Name:     "artifact",
		Interval: time.Duration(config.Conf.MinioIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.MinioConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Warn(
				"Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(cbService)
			}
		},
	}

	return gobreaker.NewCircuitBreaker[any](settings)
}

// PutBrief archives the structured problem brief for a session.
func (c *Client) PutBrief(ctx context.Context, sessionID string, document []byte) error {
	return c.put(ctx, "brief", fmt.Sprintf("briefs/%s.json", sessionID), document)
}

// PutNotes archives the post-session summary and action items.
func (c *Client) PutNotes(ctx context.Context, sessionID string, document []byte) error {
	return c.put(ctx, "notes", fmt.Sprintf("notes/%s.json", sessionID), document)
}

func (c *Client) put(ctx context.Context, operation, objectKey string, document []byte) error {
	_, err := c.CircuitBreaker.Execute(func() (any, error) {
		return nil, c.doPut(ctx, operation, objectKey, document)
	})

	return err
}

func (c *Client) doPut(ctx context.Context, operation, objectKey string, document []byte) error {
	timer := prometheus.NewTimer(
		prometheusMarketplace.ArtifactOperationDuration.WithLabelValues(operation),
	)
	defer timer.ObserveDuration()

	ctxWithTimeout, cancel := context.WithTimeout(
		ctx,
		time.Duration(config.Conf.MinioTimeout)*time.Second,
	)
	defer cancel()

	err := retry.Do(
		func() error {
			_, err := c.Client.PutObject(
				ctxWithTimeout,
				c.BucketName,
				c.getKey(objectKey),
				bytes.NewReader(document),
				int64(len(document)),
				minio.PutObjectOptions{ContentType: jsonContentType},
			)
			if err != nil {
				logging.Logger.Error("Artifact upload failed",
					zap.String("object_key", objectKey),
					zap.String("error", err.Error()),
				)

				return err
			}

			return nil
		},
		retry.Attempts(config.Conf.MinioMaxRetryAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.MinioRetryBackoffMinSeconds)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.MinioRetryBackoffMaxSeconds)*time.Second),
	)
	if err != nil {
		logging.Logger.Error("Artifact upload failed after all retry attempts",
			zap.String("object_key", objectKey),
			zap.String("error", err.Error()),
		)

		return err
	}

	logging.Logger.Info("Artifact stored",
		zap.String("object_key", objectKey),
		zap.Int("size", len(document)),
	)

	return nil
}

// Ping verifies the bucket is reachable and actually exists. A reachable
// endpoint without the bucket still fails every upload.
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.Client.BucketExists(ctx, c.BucketName)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("%w: %s", ErrBucketMissing, c.BucketName)
	}

	return nil
}

func (c *Client) getKey(objectKey string) string {
	return filepath.Join(c.PathPrefix, objectKey)
}
