package api

import (
	"context"
	"net/http"
	"time"

	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/logging"
	"go.uber.org/zap"
)

type applyExpertRequest struct {
	UserID          string                    `json:"user_id"          validate:"required"`
	Positioning     string                    `json:"positioning"      validate:"required"`
	Bio             string                    `json:"bio"`
	ExpertiseAreas  []string                  `json:"expertise_areas"  validate:"required,min=1"`
	ExampleProblems []string                  `json:"example_problems"`
	YearsExperience int                       `json:"years_experience"`
	LinkedinURL     string                    `json:"linkedin_url"`
	PortfolioURL    string                    `json:"portfolio_url"`
	Rate10Min       float64                   `json:"rate_10min"`
	Rate20Min       float64                   `json:"rate_20min"`
	Slots           []expert.AvailabilitySlot `json:"availability_slots"`
	AcceptASAPCalls bool                      `json:"accept_asap_calls"`
	Timezone        string                    `json:"timezone"`
}

// handleApplyExpert files a new expert application in pending status.
func (server *Server) handleApplyExpert(w http.ResponseWriter, r *http.Request) {
	var request applyExpertRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	created, err := server.Experts.CreateExpert(r.Context(), &expert.Expert{
		UserID:            request.UserID,
		Positioning:       request.Positioning,
		Bio:               request.Bio,
		ExpertiseAreas:    request.ExpertiseAreas,
		ExampleProblems:   request.ExampleProblems,
		YearsExperience:   request.YearsExperience,
		LinkedinURL:       request.LinkedinURL,
		PortfolioURL:      request.PortfolioURL,
		Rate10Min:         request.Rate10Min,
		Rate20Min:         request.Rate20Min,
		AvailabilitySlots: request.Slots,
		AcceptASAPCalls:   request.AcceptASAPCalls,
		Timezone:          request.Timezone,
	})
	if err != nil {
		respondError(w, err)

		return
	}

	server.publish(r, events.Event{
		Type:       events.TypeExpertApplied,
		ExpertID:   created.ID,
		OccurredAt: time.Now().UTC(),
	})

	respond(w, http.StatusCreated, created)
}

// handleListExperts serves the admin vetting queue; defaults to pending
// applications when no status filter is given.
func (server *Server) handleListExperts(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = expert.StatusPending
	}

	experts, err := server.Experts.ListByStatus(r.Context(), status)
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, experts)
}

func (server *Server) handleGetExpert(w http.ResponseWriter, r *http.Request) {
	e, err := server.Experts.GetExpertByID(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, e)
}

func (server *Server) handleApproveExpert(w http.ResponseWriter, r *http.Request) {
	server.vettingAction(w, r, server.Vetting.Approve)
}

func (server *Server) handleRejectExpert(w http.ResponseWriter, r *http.Request) {
	server.vettingAction(w, r, server.Vetting.Reject)
}

func (server *Server) handleSuspendExpert(w http.ResponseWriter, r *http.Request) {
	server.vettingAction(w, r, server.Vetting.Suspend)
}

func (server *Server) vettingAction(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, expertID string) error,
) {
	err := action(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusNoContent, nil)
}

type availabilityRequest struct {
	Slots           []expert.AvailabilitySlot `json:"availability_slots"`
	AcceptASAPCalls bool                      `json:"accept_asap_calls"`
	Timezone        string                    `json:"timezone" validate:"required"`
}

func (server *Server) handleUpdateAvailability(w http.ResponseWriter, r *http.Request) {
	var request availabilityRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	expertID := r.PathValue("id")

	_, err = server.Experts.GetExpertByID(r.Context(), expertID)
	if err != nil {
		respondError(w, err)

		return
	}

	err = server.Experts.UpdateAvailability(
		r.Context(),
		expertID,
		request.Slots,
		request.AcceptASAPCalls,
		request.Timezone,
	)
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusNoContent, nil)
}

func (server *Server) handleExpertSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := server.Sessions.ListByExpert(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, sessions)
}

func (server *Server) handleExpertEarnings(w http.ResponseWriter, r *http.Request) {
	expertID := r.PathValue("id")

	_, err := server.Experts.GetExpertByID(r.Context(), expertID)
	if err != nil {
		respondError(w, err)

		return
	}

	summary, err := server.Sessions.Earnings(r.Context(), expertID)
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, summary)
}

func (server *Server) publish(r *http.Request, event events.Event) {
	if server.Publisher == nil {
		return
	}

	err := server.Publisher.Publish(r.Context(), event)
	if err != nil {
		logging.Logger.Error("failed to publish api event",
			zap.String("type", event.Type),
			zap.String("expert_id", event.ExpertID),
			zap.String("error", err.Error()),
		)
	}
}
