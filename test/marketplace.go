package test

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/briefcall/marketplace/internal/analysis"
	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/events"
	"github.com/goccy/go-json"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type fakeStructurer struct{}

func (f *fakeStructurer) Structure(ctx context.Context, _ string) (*analysis.StructuredProblem, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return &analysis.StructuredProblem{
		Title:      "Pricing review",
		Category:   "pricing",
		Context:    json.RawMessage(`{"stage":"seed"}`),
		Complexity: "moderate",
	}, nil
}

func (f *fakeStructurer) Summarize(_ context.Context, _, _ string) (*analysis.SessionSummary, error) {
	return &analysis.SessionSummary{
		Summary:     "Reprice the annual plan.",
		ActionItems: []string{"raise annual price"},
	}, nil
}

var errPublisherDown = errors.New("broker unreachable")

type capturingPublisher struct {
	mu      sync.Mutex
	failing bool
	events  []events.Event
}

func (c *capturingPublisher) Publish(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failing {
		return errPublisherDown
	}

	c.events = append(c.events, event)

	return nil
}

func (c *capturingPublisher) setFailing(failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failing = failing
}

func (c *capturingPublisher) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}

	return out
}

type dbSchema struct{}

func (dbSchema) apply(t *testing.T, db *gorm.DB) {
	t.Helper()

	createStatements := []string{
		`CREATE TABLE IF NOT EXISTS experts (
			id VARCHAR(36) PRIMARY KEY,
			user_id VARCHAR(36) UNIQUE NOT NULL,
			status VARCHAR(20) DEFAULT 'pending' NOT NULL,
			positioning TEXT,
			bio TEXT,
			expertise_areas JSONB,
			example_problems JSONB,
			years_experience INT,
			linkedin_url TEXT,
			portfolio_url TEXT,
			rate_10min DOUBLE PRECISION,
			rate_20min DOUBLE PRECISION,
			availability_slots JSONB,
			accept_asap_calls BOOLEAN DEFAULT FALSE,
			timezone VARCHAR(64) DEFAULT 'Europe/London',
			total_sessions INT DEFAULT 0,
			average_rating DOUBLE PRECISION DEFAULT 0,
			nps_score DOUBLE PRECISION DEFAULT 0,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id VARCHAR(36) PRIMARY KEY,
			buyer_id VARCHAR(36) NOT NULL,
			expert_id VARCHAR(36),
			problem_title TEXT,
			problem_description TEXT,
			problem_category VARCHAR(40),
			problem_structured JSONB,
			duration_minutes INT NOT NULL,
			price_gbp DOUBLE PRECISION,
			platform_fee_gbp DOUBLE PRECISION,
			expert_payout_gbp DOUBLE PRECISION,
			scheduled_time TIMESTAMP,
			urgency VARCHAR(20) DEFAULT 'this_week',
			status VARCHAR(20) DEFAULT 'pending_payment' NOT NULL,
			ai_summary TEXT,
			action_items JSONB,
			problem_resolved BOOLEAN DEFAULT FALSE,
			buyer_rating INT,
			buyer_feedback TEXT,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS event_outbox (
			id VARCHAR(36) PRIMARY KEY,
			event_type VARCHAR(40) NOT NULL,
			msg JSONB NOT NULL,
			error TEXT NOT NULL,
			status VARCHAR(20) DEFAULT 'pending' NOT NULL,
			retry_count INT DEFAULT 0 NOT NULL,
			last_retry_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT NOW()
		);`,
	}

	for _, stmt := range createStatements {
		require.NoError(t, db.Exec(stmt).Error)
	}
}

type dockertestResources struct {
	pool           *dockertest.Pool
	mu             sync.Mutex
	activeResource []*dockertest.Resource
}

func newResources(t *testing.T) *dockertestResources {
	t.Helper()

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	pool.MaxWait = 3 * time.Minute

	return &dockertestResources{
		pool: pool,
	}
}

func (r *dockertestResources) startPostgres(t *testing.T) string {
	t.Helper()

	resource, err := r.pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16",
		Env: []string{
			"POSTGRES_PASSWORD=secret",
			"POSTGRES_USER=marketplace",
			"POSTGRES_DB=marketplace",
		},
		ExposedPorts: []string{"5432/tcp"},
	})
	require.NoError(t, err)

	r.track(resource)

	hostPort := resource.GetHostPort("5432/tcp")
	host := "localhost"

	port := hostPort
	if strings.Contains(hostPort, ":") {
		parsedHost, parsedPort, err := net.SplitHostPort(hostPort)
		if err == nil {
			if parsedHost != "" && parsedHost != "0.0.0.0" {
				host = parsedHost
			}

			port = parsedPort
		} else {
			parts := strings.Split(hostPort, ":")
			port = parts[len(parts)-1]
		}
	}

	configurePostgres(host, port)

	require.NoError(t, r.pool.Retry(func() error {
		db, err := gorm.Open(postgres.Open(testDSN(host, port)), &gorm.Config{})
		if err != nil {
			return err
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		return sqlDB.Ping()
	}))

	return testDSN(host, port)
}

func (r *dockertestResources) cleanup(t *testing.T) {
	t.Helper()

	for _, res := range r.activeResource {
		_ = r.pool.Purge(res)
	}
}

func (r *dockertestResources) track(res *dockertest.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeResource = append(r.activeResource, res)
}

func testDSN(host, port string) string {
	return "host=" + host + " user=marketplace password=secret dbname=marketplace port=" + port + " sslmode=disable"
}

func configurePostgres(host, port string) {
	config.Conf.PostgresHost = host
	config.Conf.PostgresPort = port
	config.Conf.PostgresUsername = "marketplace"
	config.Conf.PostgresPassword = "secret"
	config.Conf.PostgresDatabase = "marketplace"
	config.Conf.DBIntervalCB = 1
	config.Conf.DBConsecutiveFailuresCB = 3

	config.Conf.CommissionRate = 0.25
	config.Conf.DefaultRate10Min = 30
	config.Conf.DefaultRate20Min = 50
	config.Conf.MatchCandidateLimit = 3

	config.Conf.OutboxPoolSize = 2
	config.Conf.OutboxMaxRetries = 3
	config.Conf.OutboxLimit = 10
	config.Conf.OutboxInterval = 1
	config.Conf.OutboxRetryDelay = 0

	config.Conf.LogFilePath = filepath.Join(os.TempDir(), "marketplace-test.log")
	config.Conf.LogLevel = "INFO"
}
