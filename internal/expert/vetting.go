package expert

import (
	"context"
	"errors"
	"time"

	"github.com/briefcall/marketplace/internal/events"
	"github.com/briefcall/marketplace/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrExpertUnavailable        = errors.New("expert is not approved for bookings")
	ErrInvalidVettingTransition = errors.New("invalid vetting status transition")
)

// statusStore is the slice of the expert repository the vetting gate needs.
type statusStore interface {
	GetExpertByID(ctx context.Context, id string) (*Expert, error)
	UpdateStatusIfCurrent(ctx context.Context, id, current, next string) (bool, error)
}

// VettingService owns the expert admission state machine. Its mutators are
// exposed only on the administrative surface. Status changes have no side
// effects on existing sessions: suspending an expert leaves in-flight
// bookings untouched.
type VettingService struct {
	Experts   statusStore
	Publisher events.Publisher
}

func NewVettingService(experts statusStore, publisher events.Publisher) *VettingService {
	return &VettingService{
		Experts:   experts,
		Publisher: publisher,
	}
}

func (vettingService *VettingService) Approve(ctx context.Context, expertID string) error {
	return vettingService.transition(ctx, expertID, StatusApproved, events.TypeExpertApproved)
}

func (vettingService *VettingService) Reject(ctx context.Context, expertID string) error {
	return vettingService.transition(ctx, expertID, StatusRejected, events.TypeExpertRejected)
}

func (vettingService *VettingService) Suspend(ctx context.Context, expertID string) error {
	return vettingService.transition(ctx, expertID, StatusSuspended, events.TypeExpertSuspended)
}

func (vettingService *VettingService) transition(ctx context.Context, expertID, next, eventType string) error {
	e, err := vettingService.Experts.GetExpertByID(ctx, expertID)
	if err != nil {
		return err
	}

	if !CanTransition(e.Status, next) {
		return ErrInvalidVettingTransition
	}

	updated, err := vettingService.Experts.UpdateStatusIfCurrent(ctx, expertID, e.Status, next)
	if err != nil {
		return err
	}

	// Lost the race against a concurrent admin action.
	if !updated {
		return ErrInvalidVettingTransition
	}

	logging.Logger.Info("Expert vetting status changed",
		zap.String("expert_id", expertID),
		zap.String("from", e.Status),
		zap.String("to", next),
	)

	vettingService.publish(ctx, events.Event{
		Type:       eventType,
		ExpertID:   expertID,
		OccurredAt: time.Now().UTC(),
	})

	return nil
}

// RequireBookable returns the expert iff it may accept a booking.
func (vettingService *VettingService) RequireBookable(ctx context.Context, expertID string) (*Expert, error) {
	e, err := vettingService.Experts.GetExpertByID(ctx, expertID)
	if err != nil {
		return nil, err
	}

	if !e.IsMatchable() {
		return nil, ErrExpertUnavailable
	}

	return e, nil
}

func (vettingService *VettingService) publish(ctx context.Context, event events.Event) {
	if vettingService.Publisher == nil {
		return
	}

	err := vettingService.Publisher.Publish(ctx, event)
	if err != nil {
		logging.Logger.Error("failed to publish vetting event",
			zap.String("type", event.Type),
			zap.String("expert_id", event.ExpertID),
			zap.String("error", err.Error()),
		)
	}
}
