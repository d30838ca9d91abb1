package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/briefcall/marketplace/internal/config"
	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/matching"
	"github.com/briefcall/marketplace/internal/session"
	"go.uber.org/zap"
)

type sessionAPI interface {
	Create(ctx context.Context, input session.CreateInput) (*session.Session, error)
	MatchAndBook(ctx context.Context, sessionID, expertID string, scheduledTime time.Time) (*session.Session, error)
	MarkCompleted(ctx context.Context, sessionID string) (*session.Session, error)
	Cancel(ctx context.Context, sessionID string) error
	SubmitFeedback(ctx context.Context, sessionID string, rating int, feedbackText string) (*session.Session, error)
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	ListByStatus(ctx context.Context, status string) ([]session.Session, error)
	ListByExpert(ctx context.Context, expertID string) ([]session.Session, error)
	Earnings(ctx context.Context, expertID string) (*session.EarningsSummary, error)
}

type vettingAPI interface {
	Approve(ctx context.Context, expertID string) error
	Reject(ctx context.Context, expertID string) error
	Suspend(ctx context.Context, expertID string) error
}

type expertAPI interface {
	CreateExpert(ctx context.Context, e *expert.Expert) (*expert.Expert, error)
	GetExpertByID(ctx context.Context, id string) (*expert.Expert, error)
	ListByStatus(ctx context.Context, status string) ([]expert.Expert, error)
	UpdateAvailability(ctx context.Context, id string, slots []expert.AvailabilitySlot, acceptASAPCalls bool, timezone string) error
}

type matcherAPI interface {
	FindCandidates(ctx context.Context, query matching.Query) ([]expert.Expert, error)
}

// Server is the HTTP surface of the marketplace engine.
type Server struct {
	Sessions  sessionAPI
	Vetting   vettingAPI
	Experts   expertAPI
	Matcher   matcherAPI
	Publisher events.Publisher
}

func NewServer(
	sessions sessionAPI,
	vetting vettingAPI,
	experts expertAPI,
	matcher matcherAPI,
	publisher events.Publisher,
) *Server {
	return &Server{
		Sessions:  sessions,
		Vetting:   vetting,
		Experts:   experts,
		Matcher:   matcher,
		Publisher: publisher,
	}
}

func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", server.handleCreateSession)
	mux.HandleFunc("GET /api/sessions", server.handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", server.handleGetSession)
	mux.HandleFunc("POST /api/sessions/{id}/book", server.handleBookSession)
	mux.HandleFunc("POST /api/sessions/{id}/complete", server.handleCompleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", server.handleCancelSession)
	mux.HandleFunc("POST /api/sessions/{id}/feedback", server.handleSessionFeedback)

	mux.HandleFunc("POST /api/matching/candidates", server.handleMatchCandidates)

	mux.HandleFunc("POST /api/experts", server.handleApplyExpert)
	mux.HandleFunc("GET /api/experts", server.handleListExperts)
	mux.HandleFunc("GET /api/experts/{id}", server.handleGetExpert)
	mux.HandleFunc("POST /api/experts/{id}/approve", server.handleApproveExpert)
	mux.HandleFunc("POST /api/experts/{id}/reject", server.handleRejectExpert)
	mux.HandleFunc("POST /api/experts/{id}/suspend", server.handleSuspendExpert)
	mux.HandleFunc("PUT /api/experts/{id}/availability", server.handleUpdateAvailability)
	mux.HandleFunc("GET /api/experts/{id}/sessions", server.handleExpertSessions)
	mux.HandleFunc("GET /api/experts/{id}/earnings", server.handleExpertEarnings)

	return mux
}

// Run serves the API until the listener fails or the server is shut down.
func (server *Server) Run(ctx context.Context) error {
	addr := ":" + config.Conf.HTTPPort

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadTimeout:       time.Duration(config.Conf.HTTPTimeout) * time.Second,
		ReadHeaderTimeout: time.Duration(config.Conf.HTTPTimeout) * time.Second,
		WriteTimeout:      time.Duration(config.Conf.HTTPTimeout) * time.Second,
		IdleTimeout:       time.Duration(config.Conf.HTTPTimeout) * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			logging.Logger.Error("failed to shut down api server", zap.String("error", err.Error()))
		}
	}()

	logging.Logger.Info("start api server on port " + config.Conf.HTTPPort)

	err := httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
