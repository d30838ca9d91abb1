package api

import (
	"errors"
	"net/http"

	"github.com/briefcall/marketplace/internal/expert"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/pricing"
	"github.com/briefcall/marketplace/internal/session"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var payloadValidator = validator.New()

type errorResponse struct {
	Error string `json:"error"`
}

func decode(r *http.Request, into any) error {
	err := json.NewDecoder(r.Body).Decode(into)
	if err != nil {
		return err
	}

	return payloadValidator.Struct(into)
}

func respond(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if body == nil {
		return
	}

	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		logging.Logger.Error("failed to encode api response", zap.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, expert.ErrExpertNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrDuplicateFeedback),
		errors.Is(err, expert.ErrInvalidVettingTransition):
		return http.StatusConflict
	case errors.Is(err, expert.ErrExpertUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrInvalidRating),
		errors.Is(err, session.ErrInvalidUrgency),
		errors.Is(err, session.ErrScheduleNotFuture),
		errors.Is(err, pricing.ErrInvalidDuration),
		errors.Is(err, pricing.ErrNonPositivePrice):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondDecodeError(w http.ResponseWriter, err error) {
	respond(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}
