package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/briefcall/marketplace/internal/analysis"
	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/pricing"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newFakeSessionStore(sessions ...*Session) *fakeSessionStore {
	store := &fakeSessionStore{sessions: make(map[string]*Session)}

	for _, s := range sessions {
		store.sessions[s.ID] = s
	}

	return store
}

func (f *fakeSessionStore) CreateSession(_ context.Context, s *Session) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s.ID = uuid.New().String()
	s.Status = StatusPendingPayment
	f.sessions[s.ID] = s

	clone := *s

	return &clone, nil
}

func (f *fakeSessionStore) GetSessionByID(_ context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	clone := *s

	return &clone, nil
}

func (f *fakeSessionStore) Book(
	_ context.Context,
	sessionID, expertID string,
	scheduledTime time.Time,
	split pricing.Split,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok || s.Status != StatusPendingPayment {
		return false, nil
	}

	s.ExpertID = &expertID
	s.ScheduledTime = &scheduledTime
	s.PriceGBP = split.PriceGBP
	s.PlatformFeeGBP = split.PlatformFeeGBP
	s.ExpertPayoutGBP = split.ExpertPayoutGBP
	s.Status = StatusScheduled

	return true, nil
}

func (f *fakeSessionStore) Complete(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok || s.Status != StatusScheduled {
		return false, nil
	}

	s.Status = StatusCompleted

	return true, nil
}

func (f *fakeSessionStore) CancelIfActive(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok || IsTerminal(s.Status) {
		return false, nil
	}

	s.Status = StatusCancelled

	return true, nil
}

func (f *fakeSessionStore) SetFeedback(
	_ context.Context,
	sessionID string,
	rating int,
	feedback string,
	problemResolved bool,
) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok || s.Status != StatusCompleted || s.BuyerRating != nil {
		return false, nil
	}

	s.BuyerRating = &rating
	s.BuyerFeedback = &feedback
	s.ProblemResolved = problemResolved

	return true, nil
}

func (f *fakeSessionStore) SetSummary(_ context.Context, sessionID, summary string, actionItems []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}

	s.AISummary = summary
	s.ActionItems = actionItems

	return nil
}

func (f *fakeSessionStore) ListByStatus(_ context.Context, status string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Session

	for _, s := range f.sessions {
		if status == "" || s.Status == status {
			out = append(out, *s)
		}
	}

	return out, nil
}

func (f *fakeSessionStore) ListByExpert(_ context.Context, expertID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Session

	for _, s := range f.sessions {
		if s.ExpertID != nil && *s.ExpertID == expertID {
			out = append(out, *s)
		}
	}

	return out, nil
}

type fakeBookingGate struct {
	experts map[string]*expert.Expert
}

func (f *fakeBookingGate) RequireBookable(_ context.Context, expertID string) (*expert.Expert, error) {
	e, ok := f.experts[expertID]
	if !ok {
		return nil, expert.ErrExpertNotFound
	}

	if !e.IsMatchable() {
		return nil, expert.ErrExpertUnavailable
	}

	return e, nil
}

type fakeSessionCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *fakeSessionCounter) IncrementTotalSessions(_ context.Context, expertID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.counts == nil {
		f.counts = make(map[string]int)
	}

	f.counts[expertID]++

	return nil
}

type fakeRecomputer struct {
	mu         sync.Mutex
	recomputed []string
	err        error
}

func (f *fakeRecomputer) Recompute(_ context.Context, expertID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.recomputed = append(f.recomputed, expertID)

	return nil
}

type fakeStructurer struct {
	structured   *analysis.StructuredProblem
	structureErr error
	summary      *analysis.SessionSummary
	summaryErr   error
}

func (f *fakeStructurer) Structure(_ context.Context, _ string) (*analysis.StructuredProblem, error) {
	if f.structureErr != nil {
		return nil, f.structureErr
	}

	return f.structured, nil
}

func (f *fakeStructurer) Summarize(_ context.Context, _, _ string) (*analysis.SessionSummary, error) {
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}

	return f.summary, nil
}

type fakeBriefStore struct {
	mu     sync.Mutex
	briefs map[string][]byte
	notes  map[string][]byte
}

func newFakeBriefStore() *fakeBriefStore {
	return &fakeBriefStore{
		briefs: make(map[string][]byte),
		notes:  make(map[string][]byte),
	}
}

func (f *fakeBriefStore) PutBrief(_ context.Context, sessionID string, document []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.briefs[sessionID] = document

	return nil
}

func (f *fakeBriefStore) PutNotes(_ context.Context, sessionID string, document []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.notes[sessionID] = document

	return nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturingPublisher) Publish(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, event)

	return nil
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

type fixture struct {
	service    *Service
	store      *fakeSessionStore
	counter    *fakeSessionCounter
	recomputer *fakeRecomputer
	structurer *fakeStructurer
	briefs     *fakeBriefStore
	publisher  *capturingPublisher
}

func newFixture(structurer *fakeStructurer, experts ...*expert.Expert) *fixture {
	gate := &fakeBookingGate{experts: make(map[string]*expert.Expert)}
	for _, e := range experts {
		gate.experts[e.ID] = e
	}

	if structurer == nil {
		structurer = &fakeStructurer{
			structured: &analysis.StructuredProblem{
				Title:      "Pricing review",
				Category:   "pricing",
				Context:    json.RawMessage(`{"stage":"seed"}`),
				Complexity: "moderate",
			},
			summary: &analysis.SessionSummary{
				Summary:     "Reprice the annual plan.",
				ActionItems: []string{"raise annual price", "grandfather existing"},
			},
		}
	}

	f := &fixture{
		store:      newFakeSessionStore(),
		counter:    &fakeSessionCounter{},
		recomputer: &fakeRecomputer{},
		structurer: structurer,
		briefs:     newFakeBriefStore(),
		publisher:  &capturingPublisher{},
	}

	f.service = NewService(
		f.store,
		gate,
		f.counter,
		f.recomputer,
		f.structurer,
		&pricing.Calculator{
			CommissionRate:   0.25,
			DefaultRate10Min: 30,
			DefaultRate20Min: 50,
		},
		f.briefs,
		f.publisher,
	)

	return f
}

func approvedExpert(id string, rate10, rate20 float64) *expert.Expert {
	return &expert.Expert{
		ID:        id,
		Status:    expert.StatusApproved,
		Rate10Min: rate10,
		Rate20Min: rate20,
	}
}

func TestCreateOpensPendingPayment(t *testing.T) {
	f := newFixture(nil)

	s, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "Our annual plan is priced too low.",
		DurationMinutes:    pricing.Duration20Min,
		Urgency:            UrgencyToday,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPendingPayment, s.Status)
	require.Equal(t, "Pricing review", s.ProblemTitle)
	require.Equal(t, "pricing", s.ProblemCategory)
	require.Equal(t, UrgencyToday, s.Urgency)
	require.Nil(t, s.ExpertID)

	require.Contains(t, f.briefs.briefs, s.ID)
	require.Equal(t, []string{events.TypeSessionCreated}, f.publisher.types())
}

func TestCreateRejectsBadDuration(t *testing.T) {
	f := newFixture(nil)

	_, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "anything",
		DurationMinutes:    15,
	})
	require.ErrorIs(t, err, pricing.ErrInvalidDuration)
}

func TestCreateRejectsBadUrgency(t *testing.T) {
	f := newFixture(nil)

	_, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "anything",
		DurationMinutes:    pricing.Duration10Min,
		Urgency:            "yesterday",
	})
	require.ErrorIs(t, err, ErrInvalidUrgency)
}

func TestCreateDefaultsUrgency(t *testing.T) {
	f := newFixture(nil)

	s, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "anything",
		DurationMinutes:    pricing.Duration10Min,
	})
	require.NoError(t, err)
	require.Equal(t, UrgencyThisWeek, s.Urgency)
}

func TestCreateFallsBackWhenAnalysisFails(t *testing.T) {
	f := newFixture(&fakeStructurer{structureErr: errors.New("upstream timeout")})

	s, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "Should we fire our agency?",
		DurationMinutes:    pricing.Duration10Min,
	})
	require.NoError(t, err)
	require.Equal(t, "Business Decision", s.ProblemTitle)
	require.Equal(t, "other", s.ProblemCategory)
}

func createSession(t *testing.T, f *fixture, duration int) *Session {
	t.Helper()

	s, err := f.service.Create(context.Background(), CreateInput{
		BuyerID:            "buyer-1",
		ProblemDescription: "Our annual plan is priced too low.",
		DurationMinutes:    duration,
	})
	require.NoError(t, err)

	return s
}

func TestMatchAndBookFixesThePriceSplit(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 0, 50))
	s := createSession(t, f, pricing.Duration20Min)

	scheduled := time.Now().Add(24 * time.Hour)

	booked, err := f.service.MatchAndBook(context.Background(), s.ID, "e1", scheduled)
	require.NoError(t, err)
	require.Equal(t, StatusScheduled, booked.Status)
	require.Equal(t, "e1", *booked.ExpertID)
	require.InDelta(t, 50.0, booked.PriceGBP, 1e-9)
	require.InDelta(t, 12.5, booked.PlatformFeeGBP, 1e-9)
	require.InDelta(t, 37.5, booked.ExpertPayoutGBP, 1e-9)
	require.Contains(t, f.publisher.types(), events.TypeSessionScheduled)
}

func TestMatchAndBookUsesDefaultRate(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 0, 0))
	s := createSession(t, f, pricing.Duration10Min)

	booked, err := f.service.MatchAndBook(context.Background(), s.ID, "e1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.InDelta(t, 30.0, booked.PriceGBP, 1e-9)
	require.InDelta(t, 7.5, booked.PlatformFeeGBP, 1e-9)
	require.InDelta(t, 22.5, booked.ExpertPayoutGBP, 1e-9)
}

func TestMatchAndBookRejectsPastSchedule(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration10Min)

	_, err := f.service.MatchAndBook(context.Background(), s.ID, "e1", time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, ErrScheduleNotFuture)
}

func TestMatchAndBookRejectsUnavailableExpert(t *testing.T) {
	suspended := approvedExpert("e1", 30, 50)
	suspended.Status = expert.StatusSuspended

	f := newFixture(nil, suspended)
	s := createSession(t, f, pricing.Duration10Min)

	_, err := f.service.MatchAndBook(context.Background(), s.ID, "e1", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, expert.ErrExpertUnavailable)

	current, err := f.service.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingPayment, current.Status)
}

func TestMatchAndBookRejectsNonPendingSession(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration10Min)

	require.NoError(t, f.service.Cancel(context.Background(), s.ID))

	_, err := f.service.MatchAndBook(context.Background(), s.ID, "e1", time.Now().Add(time.Hour))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func bookSession(t *testing.T, f *fixture, s *Session, expertID string, scheduled time.Time) {
	t.Helper()

	_, err := f.service.MatchAndBook(context.Background(), s.ID, expertID, scheduled)
	require.NoError(t, err)
}

// Rewinds the stored schedule so completion guards see an elapsed session.
func rewindSchedule(f *fixture, sessionID string, to time.Time) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()

	f.store.sessions[sessionID].ScheduledTime = &to
}

func TestMarkCompletedClosesElapsedSession(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	rewindSchedule(f, s.ID, time.Now().Add(-time.Hour))

	completed, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, 1, f.counter.counts["e1"])
	require.Equal(t, "Reprice the annual plan.", completed.AISummary)
	require.Len(t, completed.ActionItems, 2)
	require.Contains(t, f.briefs.notes, s.ID)
	require.Contains(t, f.publisher.types(), events.TypeSessionCompleted)
}

func TestMarkCompletedRejectsFutureSession(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))

	_, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkCompletedRejectsUnscheduledSession(t *testing.T) {
	f := newFixture(nil)
	s := createSession(t, f, pricing.Duration20Min)

	_, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkCompletedSurvivesSummaryFailure(t *testing.T) {
	structurer := &fakeStructurer{
		structured: analysis.FallbackStructure(),
		summaryErr: errors.New("upstream timeout"),
	}

	f := newFixture(structurer, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	rewindSchedule(f, s.ID, time.Now().Add(-time.Hour))

	completed, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Empty(t, completed.AISummary)
}

func TestCancelPendingAndScheduled(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))

	pending := createSession(t, f, pricing.Duration10Min)
	require.NoError(t, f.service.Cancel(context.Background(), pending.ID))

	scheduled := createSession(t, f, pricing.Duration10Min)
	bookSession(t, f, scheduled, "e1", time.Now().Add(time.Hour))
	require.NoError(t, f.service.Cancel(context.Background(), scheduled.ID))

	for _, id := range []string{pending.ID, scheduled.ID} {
		s, err := f.service.Get(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, StatusCancelled, s.Status)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture(nil)
	s := createSession(t, f, pricing.Duration10Min)

	require.NoError(t, f.service.Cancel(context.Background(), s.ID))
	require.NoError(t, f.service.Cancel(context.Background(), s.ID))
}

func TestCancelCompletedFails(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration10Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	rewindSchedule(f, s.ID, time.Now().Add(-time.Hour))

	_, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.NoError(t, err)

	require.ErrorIs(t, f.service.Cancel(context.Background(), s.ID), ErrInvalidTransition)
}

func completeSession(t *testing.T, f *fixture, s *Session) {
	t.Helper()

	rewindSchedule(f, s.ID, time.Now().Add(-time.Hour))

	_, err := f.service.MarkCompleted(context.Background(), s.ID)
	require.NoError(t, err)
}

func TestSubmitFeedbackRecordsAndRecomputes(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	completeSession(t, f, s)

	rated, err := f.service.SubmitFeedback(context.Background(), s.ID, 5, "sharp, actionable advice")
	require.NoError(t, err)
	require.Equal(t, 5, *rated.BuyerRating)
	require.Equal(t, "sharp, actionable advice", *rated.BuyerFeedback)
	require.True(t, rated.ProblemResolved)
	require.Equal(t, []string{"e1"}, f.recomputer.recomputed)
	require.Contains(t, f.publisher.types(), events.TypeSessionFeedback)
}

func TestSubmitFeedbackLowRatingLeavesUnresolved(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	completeSession(t, f, s)

	rated, err := f.service.SubmitFeedback(context.Background(), s.ID, 3, "too generic")
	require.NoError(t, err)
	require.False(t, rated.ProblemResolved)
}

func TestSubmitFeedbackRejectsOutOfRangeRating(t *testing.T) {
	f := newFixture(nil)

	for _, rating := range []int{0, -1, 6} {
		_, err := f.service.SubmitFeedback(context.Background(), "any", rating, "")
		require.ErrorIs(t, err, ErrInvalidRating)
	}
}

func TestSubmitFeedbackRejectsNonCompleted(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)

	_, err := f.service.SubmitFeedback(context.Background(), s.ID, 5, "")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmitFeedbackIsOneShot(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))
	s := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	completeSession(t, f, s)

	_, err := f.service.SubmitFeedback(context.Background(), s.ID, 5, "first")
	require.NoError(t, err)

	_, err = f.service.SubmitFeedback(context.Background(), s.ID, 1, "second")
	require.ErrorIs(t, err, ErrDuplicateFeedback)

	s, err = f.service.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Equal(t, 5, *s.BuyerRating)
}

func TestEarnings(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 50))

	for i := 0; i < 2; i++ {
		s := createSession(t, f, pricing.Duration20Min)
		bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
		completeSession(t, f, s)
	}

	// A scheduled-but-not-completed session must not count.
	open := createSession(t, f, pricing.Duration20Min)
	bookSession(t, f, open, "e1", time.Now().Add(time.Hour))

	summary, err := f.service.Earnings(context.Background(), "e1")
	require.NoError(t, err)
	require.Equal(t, 2, summary.CompletedSessions)
	require.InDelta(t, 75.0, summary.TotalGBP, 1e-9)
	require.True(t, summary.MeetsPayoutThreshold)
}

func TestEarningsBelowThreshold(t *testing.T) {
	f := newFixture(nil, approvedExpert("e1", 30, 0))

	s := createSession(t, f, pricing.Duration10Min)
	bookSession(t, f, s, "e1", time.Now().Add(time.Hour))
	completeSession(t, f, s)

	summary, err := f.service.Earnings(context.Background(), "e1")
	require.NoError(t, err)
	require.InDelta(t, 22.5, summary.TotalGBP, 1e-9)
	require.False(t, summary.MeetsPayoutThreshold)
}
