package api

import (
	"net/http"
	"time"

	"github.com/briefcall/marketplace/internal/matching"
	"github.com/briefcall/marketplace/internal/session"
)

type createSessionRequest struct {
	BuyerID            string `json:"buyer_id"            validate:"required"`
	ProblemDescription string `json:"problem_description" validate:"required"`
	DurationMinutes    int    `json:"duration_minutes"    validate:"required"`
	Urgency            string `json:"urgency"`
}

func (server *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var request createSessionRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	created, err := server.Sessions.Create(r.Context(), session.CreateInput{
		BuyerID:            request.BuyerID,
		ProblemDescription: request.ProblemDescription,
		DurationMinutes:    request.DurationMinutes,
		Urgency:            request.Urgency,
	})
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusCreated, created)
}

func (server *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := server.Sessions.ListByStatus(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, sessions)
}

func (server *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := server.Sessions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, s)
}

type bookSessionRequest struct {
	ExpertID      string    `json:"expert_id"      validate:"required"`
	ScheduledTime time.Time `json:"scheduled_time" validate:"required"`
}

func (server *Server) handleBookSession(w http.ResponseWriter, r *http.Request) {
	var request bookSessionRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	booked, err := server.Sessions.MatchAndBook(
		r.Context(),
		r.PathValue("id"),
		request.ExpertID,
		request.ScheduledTime,
	)
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, booked)
}

func (server *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	completed, err := server.Sessions.MarkCompleted(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, completed)
}

func (server *Server) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	err := server.Sessions.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusNoContent, nil)
}

type sessionFeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required"`
	Feedback string `json:"feedback"`
}

func (server *Server) handleSessionFeedback(w http.ResponseWriter, r *http.Request) {
	var request sessionFeedbackRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	rated, err := server.Sessions.SubmitFeedback(
		r.Context(),
		r.PathValue("id"),
		request.Rating,
		request.Feedback,
	)
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, rated)
}

type matchCandidatesRequest struct {
	ProblemCategory string   `json:"problem_category" validate:"required"`
	ExpertiseTags   []string `json:"expertise_tags"`
	Urgency         string   `json:"urgency"`
}

func (server *Server) handleMatchCandidates(w http.ResponseWriter, r *http.Request) {
	var request matchCandidatesRequest

	err := decode(r, &request)
	if err != nil {
		respondDecodeError(w, err)

		return
	}

	candidates, err := server.Matcher.FindCandidates(r.Context(), matching.Query{
		ProblemCategory: request.ProblemCategory,
		ExpertiseTags:   request.ExpertiseTags,
		Urgency:         request.Urgency,
	})
	if err != nil {
		respondError(w, err)

		return
	}

	respond(w, http.StatusOK, candidates)
}
