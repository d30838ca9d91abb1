package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/session"
)

type approvedSource interface {
	ListApproved(ctx context.Context) ([]expert.Expert, error)
}

// Policy selects candidate experts for a structured problem. Only approved
// experts are ever considered; an empty result is a valid no-match outcome.
type Policy struct {
	Experts approvedSource
	Limit   int
}

func NewPolicy(experts approvedSource, limit int) *Policy {
	return &Policy{
		Experts: experts,
		Limit:   limit,
	}
}

type Query struct {
	ProblemCategory string
	ExpertiseTags   []string
	Urgency         string
}

// FindCandidates returns up to Limit approved experts whose expertise
// overlaps the query tags, ranked by rating, then session count, then id.
// The problem category is treated as one more matchable tag, so an expert
// listing "pricing" matches a pricing problem with no explicit tags.
func (policy *Policy) FindCandidates(ctx context.Context, query Query) ([]expert.Expert, error) {
	experts, err := policy.Experts.ListApproved(ctx)
	if err != nil {
		return nil, err
	}

	wanted := normalizeTags(append([]string{query.ProblemCategory}, query.ExpertiseTags...))

	candidates := make([]expert.Expert, 0, len(experts))

	for idx := range experts {
		e := experts[idx]

		if !e.IsMatchable() {
			continue
		}

		if query.Urgency == session.UrgencyASAP && !e.AcceptASAPCalls {
			continue
		}

		if !intersects(wanted, e.ExpertiseAreas) {
			continue
		}

		candidates = append(candidates, e)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].AverageRating != candidates[j].AverageRating {
			return candidates[i].AverageRating > candidates[j].AverageRating
		}

		if candidates[i].TotalSessions != candidates[j].TotalSessions {
			return candidates[i].TotalSessions > candidates[j].TotalSessions
		}

		return candidates[i].ID < candidates[j].ID
	})

	if policy.Limit > 0 && len(candidates) > policy.Limit {
		candidates = candidates[:policy.Limit]
	}

	return candidates, nil
}

func normalizeTags(tags []string) map[string]struct{} {
	normalized := make(map[string]struct{}, len(tags))

	for _, tag := range tags {
		if key := normalize(tag); key != "" {
			normalized[key] = struct{}{}
		}
	}

	return normalized
}

func intersects(wanted map[string]struct{}, areas []string) bool {
	for _, area := range areas {
		if _, ok := wanted[normalize(area)]; ok {
			return true
		}
	}

	return false
}

func normalize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	value = strings.ReplaceAll(value, " ", "_")
	value = strings.ReplaceAll(value, "-", "_")

	return value
}
