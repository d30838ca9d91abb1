package session

import (
	"context"
	"errors"
	"time"

	"github.com/briefcall/marketplace/internal/analysis"
	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/pricing"
	prometheusMarketplace "github.com/briefcall/marketplace/internal/prometheus"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidTransition   = errors.New("invalid session state transition")
	ErrDuplicateFeedback   = errors.New("session feedback already submitted")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrInvalidUrgency      = errors.New("unknown urgency value")
	ErrScheduleNotFuture   = errors.New("scheduled time must be in the future")
	ErrSessionNotScheduled = errors.New("session has no scheduled time")
)

// Ratings at or above this mark the underlying problem as resolved.
const resolvedRatingThreshold = 4

type sessionStore interface {
	CreateSession(ctx context.Context, s *Session) (*Session, error)
	GetSessionByID(ctx context.Context, id string) (*Session, error)
	Book(ctx context.Context, sessionID, expertID string, scheduledTime time.Time, split pricing.Split) (bool, error)
	Complete(ctx context.Context, sessionID string) (bool, error)
	CancelIfActive(ctx context.Context, sessionID string) (bool, error)
	SetFeedback(ctx context.Context, sessionID string, rating int, feedback string, problemResolved bool) (bool, error)
	SetSummary(ctx context.Context, sessionID, summary string, actionItems []string) error
	ListByStatus(ctx context.Context, status string) ([]Session, error)
	ListByExpert(ctx context.Context, expertID string) ([]Session, error)
}

type bookingGate interface {
	RequireBookable(ctx context.Context, expertID string) (*expert.Expert, error)
}

type sessionCounter interface {
	IncrementTotalSessions(ctx context.Context, expertID string) error
}

type reputationRecomputer interface {
	Recompute(ctx context.Context, expertID string) error
}

type problemStructurer interface {
	Structure(ctx context.Context, rawProblemText string) (*analysis.StructuredProblem, error)
	Summarize(ctx context.Context, problemTitle, problemDescription string) (*analysis.SessionSummary, error)
}

type briefStore interface {
	PutBrief(ctx context.Context, sessionID string, document []byte) error
	PutNotes(ctx context.Context, sessionID string, document []byte) error
}

// Service owns every session state transition. All money and status writes
// flow through here; callers never touch derived fields directly.
type Service struct {
	Sessions   sessionStore
	Vetting    bookingGate
	Experts    sessionCounter
	Rating     reputationRecomputer
	Structurer problemStructurer
	Calculator *pricing.Calculator
	Briefs     briefStore
	Publisher  events.Publisher
}

func NewService(
	sessions sessionStore,
	vetting bookingGate,
	experts sessionCounter,
	rating reputationRecomputer,
	structurer problemStructurer,
	calculator *pricing.Calculator,
	briefs briefStore,
	publisher events.Publisher,
) *Service {
	return &Service{
		Sessions:   sessions,
		Vetting:    vetting,
		Experts:    experts,
		Rating:     rating,
		Structurer: structurer,
		Calculator: calculator,
		Briefs:     briefs,
		Publisher:  publisher,
	}
}

type CreateInput struct {
	BuyerID            string
	ProblemDescription string
	DurationMinutes    int
	Urgency            string
}

// Create structures the problem and opens a session in pending_payment.
// Analysis failures degrade to the static fallback; they never block
// creation.
func (service *Service) Create(ctx context.Context, input CreateInput) (*Session, error) {
	timer := prometheus.NewTimer(
		prometheusMarketplace.LifecycleOperationDuration.WithLabelValues("create"),
	)
	defer timer.ObserveDuration()

	if input.DurationMinutes != pricing.Duration10Min && input.DurationMinutes != pricing.Duration20Min {
		return nil, pricing.ErrInvalidDuration
	}

	urgency := input.Urgency
	if urgency == "" {
		urgency = UrgencyThisWeek
	}

	if !ValidUrgency(urgency) {
		return nil, ErrInvalidUrgency
	}

	structured := service.structureProblem(ctx, input.ProblemDescription)

	s := &Session{
		BuyerID:            input.BuyerID,
		ProblemTitle:       structured.Title,
		ProblemDescription: input.ProblemDescription,
		ProblemCategory:    structured.Category,
		ProblemStructured:  []byte(structured.Context),
		DurationMinutes:    input.DurationMinutes,
		Urgency:            urgency,
	}

	created, err := service.Sessions.CreateSession(ctx, s)
	if err != nil {
		return nil, err
	}

	prometheusMarketplace.SessionTransitions.WithLabelValues(StatusPendingPayment).Inc()

	service.storeBrief(ctx, created, structured)
	service.publish(ctx, events.Event{
		Type:       events.TypeSessionCreated,
		SessionID:  created.ID,
		BuyerID:    created.BuyerID,
		OccurredAt: time.Now().UTC(),
	})

	return created, nil
}

// MatchAndBook assigns an approved expert and fixes the price split in one
// atomic update guarded on pending_payment.
func (service *Service) MatchAndBook(
	ctx context.Context,
	sessionID, expertID string,
	scheduledTime time.Time,
) (*Session, error) {
	timer := prometheus.NewTimer(
		prometheusMarketplace.LifecycleOperationDuration.WithLabelValues("match_and_book"),
	)
	defer timer.ObserveDuration()

	if !scheduledTime.After(time.Now()) {
		return nil, ErrScheduleNotFuture
	}

	var (
		s *Session
		e *expert.Expert
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error

		s, err = service.Sessions.GetSessionByID(groupCtx, sessionID)

		return err
	})

	group.Go(func() error {
		var err error

		e, err = service.Vetting.RequireBookable(groupCtx, expertID)

		return err
	})

	err := group.Wait()
	if err != nil {
		return nil, err
	}

	if s.Status != StatusPendingPayment {
		return nil, ErrInvalidTransition
	}

	split, err := service.Calculator.Quote(s.DurationMinutes, e.Rate10Min, e.Rate20Min)
	if err != nil {
		return nil, err
	}

	booked, err := service.Sessions.Book(ctx, sessionID, expertID, scheduledTime, split)
	if err != nil {
		return nil, err
	}

	if !booked {
		return nil, ErrInvalidTransition
	}

	prometheusMarketplace.SessionTransitions.WithLabelValues(StatusScheduled).Inc()

	logging.Logger.Info("Session booked",
		zap.String("session_id", sessionID),
		zap.String("expert_id", expertID),
		zap.Time("scheduled_time", scheduledTime),
		zap.Float64("price_gbp", split.PriceGBP),
	)

	service.publish(ctx, events.Event{
		Type:       events.TypeSessionScheduled,
		SessionID:  sessionID,
		ExpertID:   expertID,
		BuyerID:    s.BuyerID,
		OccurredAt: time.Now().UTC(),
	})

	return service.Sessions.GetSessionByID(ctx, sessionID)
}

// MarkCompleted closes out a scheduled session whose time has passed and
// credits the expert's session counter.
func (service *Service) MarkCompleted(ctx context.Context, sessionID string) (*Session, error) {
	timer := prometheus.NewTimer(
		prometheusMarketplace.LifecycleOperationDuration.WithLabelValues("mark_completed"),
	)
	defer timer.ObserveDuration()

	s, err := service.Sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	if s.ScheduledTime == nil {
		return nil, ErrSessionNotScheduled
	}

	if s.ScheduledTime.After(time.Now()) {
		return nil, ErrInvalidTransition
	}

	completed, err := service.Sessions.Complete(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !completed {
		return nil, ErrInvalidTransition
	}

	prometheusMarketplace.SessionTransitions.WithLabelValues(StatusCompleted).Inc()

	if s.ExpertID != nil {
		err = service.Experts.IncrementTotalSessions(ctx, *s.ExpertID)
		if err != nil {
			logging.Logger.Error("failed to increment expert session counter",
				zap.String("session_id", sessionID),
				zap.String("expert_id", *s.ExpertID),
				zap.String("error", err.Error()),
			)
		}
	}

	service.attachSummary(ctx, s)
	service.publish(ctx, events.Event{
		Type:       events.TypeSessionCompleted,
		SessionID:  sessionID,
		ExpertID:   stringValue(s.ExpertID),
		BuyerID:    s.BuyerID,
		OccurredAt: time.Now().UTC(),
	})

	return service.Sessions.GetSessionByID(ctx, sessionID)
}

// Cancel cancels a session still in flight. Cancelling an already-cancelled
// session is a no-op, not an error.
func (service *Service) Cancel(ctx context.Context, sessionID string) error {
	timer := prometheus.NewTimer(
		prometheusMarketplace.LifecycleOperationDuration.WithLabelValues("cancel"),
	)
	defer timer.ObserveDuration()

	s, err := service.Sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	if s.Status == StatusCancelled {
		return nil
	}

	if !CanCancel(s.Status) {
		return ErrInvalidTransition
	}

	cancelled, err := service.Sessions.CancelIfActive(ctx, sessionID)
	if err != nil {
		return err
	}

	if !cancelled {
		// Raced with another transition; cancelled-by-someone-else stays a
		// no-op, anything else is a contract violation.
		s, err = service.Sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return err
		}

		if s.Status == StatusCancelled {
			return nil
		}

		return ErrInvalidTransition
	}

	prometheusMarketplace.SessionTransitions.WithLabelValues(StatusCancelled).Inc()

	service.publish(ctx, events.Event{
		Type:       events.TypeSessionCancelled,
		SessionID:  sessionID,
		ExpertID:   stringValue(s.ExpertID),
		BuyerID:    s.BuyerID,
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// SubmitFeedback records the buyer's one-shot rating and synchronously
// recomputes the expert's reputation.
func (service *Service) SubmitFeedback(
	ctx context.Context,
	sessionID string,
	rating int,
	feedbackText string,
) (*Session, error) {
	timer := prometheus.NewTimer(
		prometheusMarketplace.LifecycleOperationDuration.WithLabelValues("submit_feedback"),
	)
	defer timer.ObserveDuration()

	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	s, err := service.Sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.Status != StatusCompleted {
		return nil, ErrInvalidTransition
	}

	if s.BuyerRating != nil {
		return nil, ErrDuplicateFeedback
	}

	resolved := rating >= resolvedRatingThreshold

	set, err := service.Sessions.SetFeedback(ctx, sessionID, rating, feedbackText, resolved)
	if err != nil {
		return nil, err
	}

	if !set {
		// The guarded update matched no row: either a concurrent rating won
		// or the status changed underneath us.
		s, err = service.Sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		if s.BuyerRating != nil {
			return nil, ErrDuplicateFeedback
		}

		return nil, ErrInvalidTransition
	}

	if s.ExpertID != nil {
		err = service.Rating.Recompute(ctx, *s.ExpertID)
		if err != nil {
			logging.Logger.Error("failed to recompute expert rating",
				zap.String("session_id", sessionID),
				zap.String("expert_id", *s.ExpertID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}
	}

	service.publish(ctx, events.Event{
		Type:       events.TypeSessionFeedback,
		SessionID:  sessionID,
		ExpertID:   stringValue(s.ExpertID),
		BuyerID:    s.BuyerID,
		OccurredAt: time.Now().UTC(),
	})

	return service.Sessions.GetSessionByID(ctx, sessionID)
}

// Get returns one session.
func (service *Service) Get(ctx context.Context, sessionID string) (*Session, error) {
	return service.Sessions.GetSessionByID(ctx, sessionID)
}

// ListByStatus serves the admin session overview.
func (service *Service) ListByStatus(ctx context.Context, status string) ([]Session, error) {
	return service.Sessions.ListByStatus(ctx, status)
}

// ListByExpert serves the expert dashboard.
func (service *Service) ListByExpert(ctx context.Context, expertID string) ([]Session, error) {
	return service.Sessions.ListByExpert(ctx, expertID)
}

// EarningsSummary aggregates an expert's payouts from completed sessions.
type EarningsSummary struct {
	TotalGBP             float64 `json:"total_gbp"`
	ThisMonthGBP         float64 `json:"this_month_gbp"`
	CompletedSessions    int     `json:"completed_sessions"`
	MeetsPayoutThreshold bool    `json:"meets_payout_threshold"`
}

// Earnings folds the expert's completed sessions into a payout summary.
func (service *Service) Earnings(ctx context.Context, expertID string) (*EarningsSummary, error) {
	sessions, err := service.Sessions.ListByExpert(ctx, expertID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	summary := &EarningsSummary{}

	for idx := range sessions {
		s := sessions[idx]
		if s.Status != StatusCompleted {
			continue
		}

		summary.CompletedSessions++
		summary.TotalGBP += s.ExpertPayoutGBP

		if s.ScheduledTime != nil &&
			s.ScheduledTime.Year() == now.Year() &&
			s.ScheduledTime.Month() == now.Month() {
			summary.ThisMonthGBP += s.ExpertPayoutGBP
		}
	}

	summary.MeetsPayoutThreshold = summary.TotalGBP >= pricing.MinimumPayoutGBP

	return summary, nil
}

func (service *Service) structureProblem(ctx context.Context, rawProblemText string) *analysis.StructuredProblem {
	timer := prometheus.NewTimer(prometheusMarketplace.AnalysisDuration)
	defer timer.ObserveDuration()

	structured, err := service.Structurer.Structure(ctx, rawProblemText)
	if err != nil {
		logging.Logger.Warn("problem analysis failed, using fallback structure",
			zap.String("error", err.Error()),
		)

		prometheusMarketplace.AnalysisFallbacks.Inc()

		return analysis.FallbackStructure()
	}

	return structured
}

func (service *Service) attachSummary(ctx context.Context, s *Session) {
	summary, err := service.Structurer.Summarize(ctx, s.ProblemTitle, s.ProblemDescription)
	if err != nil {
		logging.Logger.Warn("session summary generation failed",
			zap.String("session_id", s.ID),
			zap.String("error", err.Error()),
		)

		return
	}

	err = service.Sessions.SetSummary(ctx, s.ID, summary.Summary, summary.ActionItems)
	if err != nil {
		logging.Logger.Error("failed to store session summary",
			zap.String("session_id", s.ID),
			zap.String("error", err.Error()),
		)

		return
	}

	if service.Briefs == nil {
		return
	}

	document, err := json.Marshal(summary)
	if err != nil {
		return
	}

	err = service.Briefs.PutNotes(ctx, s.ID, document)
	if err != nil {
		logging.Logger.Warn("failed to archive session notes",
			zap.String("session_id", s.ID),
			zap.String("error", err.Error()),
		)
	}
}

func (service *Service) storeBrief(ctx context.Context, s *Session, structured *analysis.StructuredProblem) {
	if service.Briefs == nil {
		return
	}

	document, err := json.Marshal(map[string]any{
		"session_id":          s.ID,
		"problem_title":       s.ProblemTitle,
		"problem_description": s.ProblemDescription,
		"problem_category":    s.ProblemCategory,
		"structured":          structured,
	})
	if err != nil {
		return
	}

	err = service.Briefs.PutBrief(ctx, s.ID, document)
	if err != nil {
		logging.Logger.Warn("failed to archive problem brief",
			zap.String("session_id", s.ID),
			zap.String("error", err.Error()),
		)
	}
}

func (service *Service) publish(ctx context.Context, event events.Event) {
	if service.Publisher == nil {
		return
	}

	err := service.Publisher.Publish(ctx, event)
	if err != nil {
		logging.Logger.Error("failed to publish session event",
			zap.String("type", event.Type),
			zap.String("session_id", event.SessionID),
			zap.String("error", err.Error()),
		)
	}
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
