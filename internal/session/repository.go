package session

import (
	"context"
	"errors"
	"time"

	"github.com/briefcall/marketplace/internal/database"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/briefcall/marketplace/internal/pricing"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidSessionResult     = errors.New("invalid result type, it should be pointer to Session struct")
	ErrInvalidSessionListResult = errors.New("invalid result type, it should be slice of Session structs")
	ErrSessionNotFound          = errors.New("session not found")
)

type SessionRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewSessionRepository(dbConn *gorm.DB) *SessionRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &SessionRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// CreateSession inserts a new session. Price fields stay unset until booking.
func (sessionRepository *SessionRepository) CreateSession(ctx context.Context, s *Session) (*Session, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		if s.ID == "" {
			s.ID = uuid.NewString()
		}

		s.Status = StatusPendingPayment

		err := sessionRepository.DBConn.WithContext(ctx).
			Omit("price_gbp", "platform_fee_gbp", "expert_payout_gbp").
			Create(s).Error
		if err != nil {
			logging.Logger.Error("[CreateSession] Failed to create session",
				zap.String("buyer_id", s.BuyerID),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return s, nil
	})
	if err != nil {
		return nil, err
	}

	created, ok := result.(*Session)
	if !ok {
		return nil, ErrInvalidSessionResult
	}

	return created, nil
}

// GetSessionByID retrieves a Session by its id.
func (sessionRepository *SessionRepository) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		var s Session

		err := sessionRepository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}

		if err != nil {
			return nil, err
		}

		return &s, nil
	})
	if err != nil {
		return nil, err
	}

	s, ok := result.(*Session)
	if !ok {
		return nil, ErrInvalidSessionResult
	}

	return s, nil
}

// Book atomically assigns the expert, the schedule, the full price split and
// the scheduled status, guarded on the session still being pending_payment.
// Exactly one of two concurrent bookings can win; the loser sees false.
func (sessionRepository *SessionRepository) Book(
	ctx context.Context,
	sessionID, expertID string,
	scheduledTime time.Time,
	split pricing.Split,
) (bool, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		res := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("id = ? AND status = ?", sessionID, StatusPendingPayment).
			Updates(map[string]any{
				"expert_id":         expertID,
				"scheduled_time":    scheduledTime,
				"price_gbp":         split.PriceGBP,
				"platform_fee_gbp":  split.PlatformFeeGBP,
				"expert_payout_gbp": split.ExpertPayoutGBP,
				"status":            StatusScheduled,
			})
		if res.Error != nil {
			logging.Logger.Error("[Book] Failed to book session",
				zap.String("session_id", sessionID),
				zap.String("expert_id", expertID),
				zap.String("error", res.Error.Error()),
			)

			return nil, res.Error
		}

		return res.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	booked, ok := result.(bool)
	if !ok {
		return false, ErrInvalidSessionResult
	}

	return booked, nil
}

// Complete moves the session from scheduled to completed.
func (sessionRepository *SessionRepository) Complete(ctx context.Context, sessionID string) (bool, error) {
	return sessionRepository.casStatus(ctx, sessionID, StatusScheduled, StatusCompleted)
}

// CancelIfActive cancels a session still in a cancellable status. A session
// already cancelled simply matches no row.
func (sessionRepository *SessionRepository) CancelIfActive(ctx context.Context, sessionID string) (bool, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		res := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("id = ? AND status IN ?", sessionID, []string{StatusPendingPayment, StatusScheduled}).
			Update("status", StatusCancelled)
		if res.Error != nil {
			return nil, res.Error
		}

		return res.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	cancelled, ok := result.(bool)
	if !ok {
		return false, ErrInvalidSessionResult
	}

	return cancelled, nil
}

// SetFeedback records the buyer's one-shot rating, guarded on the session
// being completed and not yet rated.
func (sessionRepository *SessionRepository) SetFeedback(
	ctx context.Context,
	sessionID string,
	rating int,
	feedback string,
	problemResolved bool,
) (bool, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		res := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("id = ? AND status = ? AND buyer_rating IS NULL", sessionID, StatusCompleted).
			Updates(map[string]any{
				"buyer_rating":     rating,
				"buyer_feedback":   feedback,
				"problem_resolved": problemResolved,
			})
		if res.Error != nil {
			logging.Logger.Error("[SetFeedback] Failed to set feedback",
				zap.String("session_id", sessionID),
				zap.Int("rating", rating),
				zap.String("error", res.Error.Error()),
			)

			return nil, res.Error
		}

		return res.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	set, ok := result.(bool)
	if !ok {
		return false, ErrInvalidSessionResult
	}

	return set, nil
}

// SetSummary attaches the post-session AI summary and action items.
func (sessionRepository *SessionRepository) SetSummary(
	ctx context.Context,
	sessionID, summary string,
	actionItems []string,
) error {
	_, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		res := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("id = ?", sessionID).
			Updates(map[string]any{
				"ai_summary":   summary,
				"action_items": datatypes.NewJSONSlice(actionItems),
			})
		if res.Error != nil {
			return nil, res.Error
		}

		if res.RowsAffected == 0 {
			return nil, ErrSessionNotFound
		}

		return nil, nil
	})

	return err
}

// ListByStatus returns sessions in a status, newest first; an empty status
// returns everything (the admin overview).
func (sessionRepository *SessionRepository) ListByStatus(ctx context.Context, status string) ([]Session, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		var sessions []Session

		query := sessionRepository.DBConn.WithContext(ctx).Order("created_at DESC")
		if status != "" {
			query = query.Where("status = ?", status)
		}

		err := query.Find(&sessions).Error
		if err != nil {
			return nil, err
		}

		return sessions, nil
	})
	if err != nil {
		return nil, err
	}

	sessions, ok := result.([]Session)
	if !ok {
		return nil, ErrInvalidSessionListResult
	}

	return sessions, nil
}

// ListByExpert returns sessions assigned to the expert, most recent
// schedule first.
func (sessionRepository *SessionRepository) ListByExpert(ctx context.Context, expertID string) ([]Session, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		var sessions []Session

		err := sessionRepository.DBConn.WithContext(ctx).
			Where("expert_id = ?", expertID).
			Order("scheduled_time DESC").
			Find(&sessions).Error
		if err != nil {
			return nil, err
		}

		return sessions, nil
	})
	if err != nil {
		return nil, err
	}

	sessions, ok := result.([]Session)
	if !ok {
		return nil, ErrInvalidSessionListResult
	}

	return sessions, nil
}

// ListRatings returns every rating given to the expert's sessions. The
// rating aggregator is the only caller.
func (sessionRepository *SessionRepository) ListRatings(ctx context.Context, expertID string) ([]int, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		var ratings []int

		err := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("expert_id = ? AND buyer_rating IS NOT NULL", expertID).
			Pluck("buyer_rating", &ratings).Error
		if err != nil {
			return nil, err
		}

		return ratings, nil
	})
	if err != nil {
		return nil, err
	}

	ratings, ok := result.([]int)
	if !ok {
		return nil, ErrInvalidSessionListResult
	}

	return ratings, nil
}

func (sessionRepository *SessionRepository) casStatus(
	ctx context.Context,
	sessionID, current, next string,
) (bool, error) {
	result, err := sessionRepository.CircuitBreaker.Execute(func() (any, error) {
		res := sessionRepository.DBConn.WithContext(ctx).
			Model(&Session{}).
			Where("id = ? AND status = ?", sessionID, current).
			Update("status", next)
		if res.Error != nil {
			logging.Logger.Error("[casStatus] Failed to update session status",
				zap.String("session_id", sessionID),
				zap.String("current", current),
				zap.String("next", next),
				zap.String("error", res.Error.Error()),
			)

			return nil, res.Error
		}

		return res.RowsAffected == 1, nil
	})
	if err != nil {
		return false, err
	}

	updated, ok := result.(bool)
	if !ok {
		return false, ErrInvalidSessionResult
	}

	return updated, nil
}
