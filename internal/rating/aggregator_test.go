package rating

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRatingSource struct {
	mu      sync.Mutex
	ratings map[string][]int
}

func (f *fakeRatingSource) ListRatings(_ context.Context, expertID string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]int(nil), f.ratings[expertID]...), nil
}

func (f *fakeRatingSource) addRating(expertID string, rating int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ratings[expertID] = append(f.ratings[expertID], rating)
}

type fakeReputationWriter struct {
	mu      sync.Mutex
	average map[string]float64
	nps     map[string]float64
	writes  int
}

func (f *fakeReputationWriter) UpdateReputation(
	_ context.Context,
	expertID string,
	averageRating, npsScore float64,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.average[expertID] = averageRating
	f.nps[expertID] = npsScore
	f.writes++

	return nil
}

func newAggregatorFixture() (*Aggregator, *fakeRatingSource, *fakeReputationWriter) {
	source := &fakeRatingSource{ratings: make(map[string][]int)}
	writer := &fakeReputationWriter{
		average: make(map[string]float64),
		nps:     make(map[string]float64),
	}

	return NewAggregator(source, writer), source, writer
}

func TestAggregate(t *testing.T) {
	average, nps := Aggregate([]int{5, 3, 4})
	require.Equal(t, 4.0, average)
	require.InDelta(t, 0.0, nps, 0.0001) // one promoter, one detractor

	average, nps = Aggregate(nil)
	require.Equal(t, 0.0, average)
	require.Equal(t, 0.0, nps)

	average, nps = Aggregate([]int{5, 5})
	require.Equal(t, 5.0, average)
	require.Equal(t, 100.0, nps)

	average, nps = Aggregate([]int{1, 2})
	require.Equal(t, 1.5, average)
	require.Equal(t, -100.0, nps)
}

func TestRecompute(t *testing.T) {
	aggregator, source, writer := newAggregatorFixture()

	source.ratings["expert-1"] = []int{5, 3, 4}

	err := aggregator.Recompute(context.Background(), "expert-1")
	require.NoError(t, err)
	require.Equal(t, 4.0, writer.average["expert-1"])
}

func TestRecomputeNoRatedSessions(t *testing.T) {
	aggregator, _, writer := newAggregatorFixture()

	err := aggregator.Recompute(context.Background(), "expert-1")
	require.NoError(t, err)
	require.Equal(t, 0.0, writer.average["expert-1"])
	require.Equal(t, 0.0, writer.nps["expert-1"])
}

func TestRecomputeIdempotent(t *testing.T) {
	aggregator, source, writer := newAggregatorFixture()

	source.ratings["expert-1"] = []int{4, 4, 5}

	require.NoError(t, aggregator.Recompute(context.Background(), "expert-1"))
	first := writer.average["expert-1"]

	require.NoError(t, aggregator.Recompute(context.Background(), "expert-1"))
	require.Equal(t, first, writer.average["expert-1"])
}

func TestRecomputeConcurrentSubmissions(t *testing.T) {
	aggregator, source, writer := newAggregatorFixture()

	// Two buyers rate the same expert at once; every recompute after both
	// writes must see both ratings.
	var wg sync.WaitGroup

	for _, rating := range []int{5, 3} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			source.addRating("expert-1", rating)
			require.NoError(t, aggregator.Recompute(context.Background(), "expert-1"))
		}()
	}

	wg.Wait()

	require.NoError(t, aggregator.Recompute(context.Background(), "expert-1"))
	require.Equal(t, 4.0, writer.average["expert-1"])
}
