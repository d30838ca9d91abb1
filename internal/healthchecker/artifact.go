package healthchecker

import (
	"context"

	"github.com/briefcall/marketplace/internal/artifact"
	"github.com/briefcall/marketplace/internal/circuitbreak"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/logging"
	"go.uber.org/zap"
)

func CheckArtifactStore() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	artifactClient, err := artifact.NewClient(
		config.Conf.MinioAccessKey,
		config.Conf.MinioSecretKey,
		config.Conf.MinioBucketName,
		config.Conf.MinioPathPrefix,
		circuitbreak.MinioService,
	)
	if err != nil {
		logging.Logger.Error("failed to create new artifact storage client", zap.String("error", err.Error()))

		return err
	}

	return artifactClient.Ping(ctx)
}
