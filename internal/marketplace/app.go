package marketplace

import (
	"context"

	"github.com/briefcall/marketplace/internal/analysis"
	"github.com/briefcall/marketplace/internal/api"
	"github.com/briefcall/marketplace/internal/artifact"
	"github.com/briefcall/marketplace/internal/circuitbreak"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/database"
	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/healthchecker"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/matching"
	"github.com/briefcall/marketplace/internal/outbox"
	"github.com/briefcall/marketplace/internal/pricing"
	"github.com/briefcall/marketplace/internal/rating"
	"github.com/briefcall/marketplace/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Marketplace struct {
	DBConn               *gorm.DB
	ArtifactClient       *artifact.Client
	KafkaProducer        *events.Producer
	OutboxService        *outbox.OutboxService
	OutboxWorker         *outbox.OutboxWorker
	ExpertRepository     *expert.ExpertRepository
	SessionRepository    *session.SessionRepository
	VettingService       *expert.VettingService
	RatingAggregator     *rating.Aggregator
	MatchingPolicy       *matching.Policy
	SessionService       *session.Service
	APIServer            *api.Server
	HealthCheckerService *healthchecker.Healthchecker
}

func NewApp(ctxCancelFun context.CancelFunc) (*Marketplace, error) {
	logging.Logger.Info("[NewApp] Initializing marketplace application...")

	healthcheckerService := healthchecker.NewService(ctxCancelFun)

	logging.Logger.Info("[NewApp] Health checker service created")

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.Error(err))

		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established")

	artifactClient, err := artifact.NewClient(
		config.Conf.MinioAccessKey,
		config.Conf.MinioSecretKey,
		config.Conf.MinioBucketName,
		config.Conf.MinioPathPrefix,
		circuitbreak.MinioService,
	)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize artifact storage client", zap.Error(err))

		return nil, err
	}

	logging.Logger.Info("[NewApp] Artifact storage client created")

	kafkaProducer, err := events.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.Error(err))

		return nil, err
	}

	logging.Logger.Info("[NewApp] Kafka producer created")

	outboxService := outbox.NewService(dbConn, kafkaProducer)

	outboxWorker, err := outbox.NewWorker(outboxService, dbConn)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create outbox worker", zap.Error(err))

		return nil, err
	}

	logging.Logger.Info("[NewApp] Outbox worker created")

	expertRepository := expert.NewExpertRepository(dbConn)
	sessionRepository := session.NewSessionRepository(dbConn)

	vettingService := expert.NewVettingService(expertRepository, outboxService)
	ratingAggregator := rating.NewAggregator(sessionRepository, expertRepository)
	matchingPolicy := matching.NewPolicy(expertRepository, config.Conf.MatchCandidateLimit)
	analysisClient := analysis.NewClient()

	calculator := &pricing.Calculator{
		CommissionRate:   config.Conf.CommissionRate,
		DefaultRate10Min: config.Conf.DefaultRate10Min,
		DefaultRate20Min: config.Conf.DefaultRate20Min,
	}

	sessionService := session.NewService(
		sessionRepository,
		vettingService,
		expertRepository,
		ratingAggregator,
		analysisClient,
		calculator,
		artifactClient,
		outboxService,
	)

	logging.Logger.Info("[NewApp] Session service created")

	apiServer := api.NewServer(
		sessionService,
		vettingService,
		expertRepository,
		matchingPolicy,
		outboxService,
	)

	logging.Logger.Info("[NewApp] Initializing circuit breakers...")
	circuitbreak.Init()
	logging.Logger.Info("[NewApp] Circuit breakers initialized")

	return &Marketplace{
		DBConn:               dbConn,
		ArtifactClient:       artifactClient,
		KafkaProducer:        kafkaProducer,
		OutboxService:        outboxService,
		OutboxWorker:         outboxWorker,
		ExpertRepository:     expertRepository,
		SessionRepository:    sessionRepository,
		VettingService:       vettingService,
		RatingAggregator:     ratingAggregator,
		MatchingPolicy:       matchingPolicy,
		SessionService:       sessionService,
		APIServer:            apiServer,
		HealthCheckerService: healthcheckerService,
	}, nil
}

func (app *Marketplace) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	logging.Logger.Info("[Run] Starting health checker monitor goroutine")

	go app.HealthCheckerService.Monitor()

	logging.Logger.Info("[Run] Starting outbox worker goroutine")

	go app.OutboxWorker.Run(ctx)

	logging.Logger.Info("[Run] Starting api server (BLOCKING)",
		zap.String("port", config.Conf.HTTPPort),
	)

	err := app.APIServer.Run(ctx)
	if err != nil {
		logging.Logger.Error("[Run] api server returned error", zap.Error(err))

		return err
	}

	logging.Logger.Warn("[Run] api server returned (context canceled or error), beginning shutdown...")

	app.shutdown()

	return nil
}

func (app *Marketplace) shutdown() {
	logging.Logger.Info("[Run] Releasing outbox worker pool...",
		zap.Int("running_workers", app.OutboxWorker.WorkerPool.Running()),
		zap.Int("free_workers", app.OutboxWorker.WorkerPool.Free()),
	)
	app.OutboxWorker.WorkerPool.Release()
	logging.Logger.Info("[Run] Outbox worker pool released")

	logging.Logger.Info("[Run] Closing Kafka producer...")

	err := app.KafkaProducer.Close()
	if err != nil {
		logging.Logger.Error("[Run] Failed to close producer", zap.String("error", err.Error()))
	} else {
		logging.Logger.Info("[Run] Kafka producer closed successfully")
	}

	logging.Logger.Info("[Run] ===== App shutdown complete =====")
}
