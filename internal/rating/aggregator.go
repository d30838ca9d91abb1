package rating

import (
	"context"
	"sync"

	"github.com/briefcall/marketplace/internal/logging"
	prometheusMarketplace "github.com/briefcall/marketplace/internal/prometheus"
	"go.uber.org/zap"
)

const (
	promoterRating  = 5
	detractorRating = 3
)

type ratingSource interface {
	ListRatings(ctx context.Context, expertID string) ([]int, error)
}

type reputationWriter interface {
	UpdateReputation(ctx context.Context, expertID string, averageRating, npsScore float64) error
}

// Aggregator is the sole writer of expert reputation. Recompute reads every
// rated session and writes the full aggregate back, serialized per expert so
// concurrent feedback submissions cannot interleave their read-then-write.
type Aggregator struct {
	Sessions ratingSource
	Experts  reputationWriter

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewAggregator(sessions ratingSource, experts reputationWriter) *Aggregator {
	return &Aggregator{
		Sessions: sessions,
		Experts:  experts,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Recompute recalculates the expert's average rating and NPS from scratch.
// Idempotent: unchanged inputs produce unchanged outputs.
func (aggregator *Aggregator) Recompute(ctx context.Context, expertID string) error {
	lock := aggregator.expertLock(expertID)
	lock.Lock()
	defer lock.Unlock()

	ratings, err := aggregator.Sessions.ListRatings(ctx, expertID)
	if err != nil {
		return err
	}

	average, nps := Aggregate(ratings)

	err = aggregator.Experts.UpdateReputation(ctx, expertID, average, nps)
	if err != nil {
		return err
	}

	prometheusMarketplace.RatingRecomputes.Inc()

	logging.Logger.Debug("Expert reputation recomputed",
		zap.String("expert_id", expertID),
		zap.Int("rated_sessions", len(ratings)),
		zap.Float64("average_rating", average),
		zap.Float64("nps_score", nps),
	)

	return nil
}

// Aggregate folds ratings into the arithmetic mean and an NPS-style score:
// percent promoters (5) minus percent detractors (3 and below). Both are 0
// when no ratings exist.
func Aggregate(ratings []int) (average, nps float64) {
	if len(ratings) == 0 {
		return 0, 0
	}

	var sum, promoters, detractors int

	for _, rating := range ratings {
		sum += rating

		switch {
		case rating >= promoterRating:
			promoters++
		case rating <= detractorRating:
			detractors++
		}
	}

	total := float64(len(ratings))
	average = float64(sum) / total
	nps = (float64(promoters) - float64(detractors)) / total * 100

	return average, nps
}

func (aggregator *Aggregator) expertLock(expertID string) *sync.Mutex {
	aggregator.mu.Lock()
	defer aggregator.mu.Unlock()

	lock, ok := aggregator.locks[expertID]
	if !ok {
		lock = &sync.Mutex{}
		aggregator.locks[expertID] = lock
	}

	return lock
}
