package expert

import (
	"context"
	"errors"

	"github.com/briefcall/marketplace/internal/database"
	"github.com/briefcall/marketplace/internal/logging"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidExpertResult     = errors.New("invalid result type, it should be pointer to Expert struct")
	ErrInvalidExpertListResult = errors.New("invalid result type, it should be slice of Expert structs")
	ErrExpertNotFound          = errors.New("expert not found")
)

type ExpertRepository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewExpertRepository(dbConn *gorm.DB) *ExpertRepository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &ExpertRepository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// CreateExpert inserts a new expert application in pending status.
func (expertRepository *ExpertRepository) CreateExpert(ctx context.Context, e *Expert) (*Expert, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}

		e.Status = StatusPending

		err := expertRepository.DBConn.WithContext(ctx).
			Omit("total_sessions", "average_rating", "nps_score").
			Create(e).Error
		if err != nil {
			return nil, err
		}

		return e, nil
	})
	if err != nil {
		return nil, err
	}

	created, ok := result.(*Expert)
	if !ok {
		return nil, ErrInvalidExpertResult
	}

	return created, nil
}

// GetExpertByID retrieves an Expert by its id.
func (expertRepository *ExpertRepository) GetExpertByID(ctx context.Context, id string) (*Expert, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		var e Expert

		err := expertRepository.DBConn.WithContext(ctx).
			Where("id = ?", id).
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExpertNotFound
		}

		if err != nil {
			return nil, err
		}

		return &e, nil
	})
	if err != nil {
		return nil, err
	}

	e, ok := result.(*Expert)
	if !ok {
		return nil, ErrInvalidExpertResult
	}

	return e, nil
}

// GetExpertByUserID retrieves the expert profile owned by a user.
func (expertRepository *ExpertRepository) GetExpertByUserID(ctx context.Context, userID string) (*Expert, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		var e Expert

		err := expertRepository.DBConn.WithContext(ctx).
			Where("user_id = ?", userID).
			First(&e).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExpertNotFound
		}

		if err != nil {
			return nil, err
		}

		return &e, nil
	})
	if err != nil {
		return nil, err
	}

	e, ok := result.(*Expert)
	if !ok {
		return nil, ErrInvalidExpertResult
	}

	return e, nil
}

// ListByStatus returns experts in the given vetting status, newest first.
// Used by the admin vetting queue.
func (expertRepository *ExpertRepository) ListByStatus(ctx context.Context, status string) ([]Expert, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		var experts []Expert

		err := expertRepository.DBConn.WithContext(ctx).
			Where("status = ?", status).
			Order("created_at DESC").
			Find(&experts).Error
		if err != nil {
			return nil, err
		}

		return experts, nil
	})
	if err != nil {
		return nil, err
	}

	experts, ok := result.([]Expert)
	if !ok {
		return nil, ErrInvalidExpertListResult
	}

	return experts, nil
}

// ListApproved returns every approved expert, ordered for deterministic
// candidate selection: rating desc, session count desc, id asc.
func (expertRepository *ExpertRepository) ListApproved(ctx context.Context) ([]Expert, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		var experts []Expert

		err := expertRepository.DBConn.WithContext(ctx).
			Where("status = ?", StatusApproved).
			Order(clause.OrderBy{Columns: []clause.OrderByColumn{
				{Column: clause.Column{Name: "average_rating"}, Desc: true},
				{Column: clause.Column{Name: "total_sessions"}, Desc: true},
				{Column: clause.Column{Name: "id"}},
			}}).
			Find(&experts).Error
		if err != nil {
			return nil, err
		}

		return experts, nil
	})
	if err != nil {
		return nil, err
	}

	experts, ok := result.([]Expert)
	if !ok {
		return nil, ErrInvalidExpertListResult
	}

	return experts, nil
}

// UpdateStatusIfCurrent moves the expert from the expected current status to
// next in one conditional update. Returns false when the row was not in the
// expected status (concurrent admin action).
func (expertRepository *ExpertRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	id, current, next string,
) (bool, error) {
	result, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		res := expertRepository.DBConn.WithContext(ctx).
			Model(&Expert{}).
			Where("id = ? AND status = ?", id, current).
			Update("status", next)
		if res.Error != nil {
			logging.Logger.Error("[UpdateStatusIfCurrent] Failed to update expert status",
				zap.String("expert_id", id),
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
		return false, ErrInvalidExpertResult
	}

	return updated, nil
}

// UpdateAvailability replaces the expert's availability fields.
func (expertRepository *ExpertRepository) UpdateAvailability(
	ctx context.Context,
	id string,
	slots []AvailabilitySlot,
	acceptASAPCalls bool,
	timezone string,
) error {
	_, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"availability_slots": datatypes.NewJSONSlice(slots),
			"accept_asap_calls":  acceptASAPCalls,
		}

		if timezone != "" {
			updates["timezone"] = timezone
		}

		res := expertRepository.DBConn.WithContext(ctx).
			Model(&Expert{}).
			Where("id = ?", id).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}

		if res.RowsAffected == 0 {
			return nil, ErrExpertNotFound
		}

		return nil, nil
	})

	return err
}

// UpdateReputation writes the recomputed rating aggregates. Only the rating
// aggregator may call this.
func (expertRepository *ExpertRepository) UpdateReputation(
	ctx context.Context,
	id string,
	averageRating, npsScore float64,
) error {
	_, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		res := expertRepository.DBConn.WithContext(ctx).
			Model(&Expert{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"average_rating": averageRating,
				"nps_score":      npsScore,
			})
		if res.Error != nil {
			logging.Logger.Error("[UpdateReputation] Failed to update expert reputation",
				zap.String("expert_id", id),
				zap.Float64("average_rating", averageRating),
				zap.String("error", res.Error.Error()),
			)

			return nil, res.Error
		}

		if res.RowsAffected == 0 {
			return nil, ErrExpertNotFound
		}

		return nil, nil
	})

	return err
}

// IncrementTotalSessions bumps the completed-session counter by one. Only
// session completion may call this.
func (expertRepository *ExpertRepository) IncrementTotalSessions(ctx context.Context, id string) error {
	_, err := expertRepository.CircuitBreaker.Execute(func() (any, error) {
		res := expertRepository.DBConn.WithContext(ctx).
			Model(&Expert{}).
			Where("id = ?", id).
			Update("total_sessions", gorm.Expr("total_sessions + 1"))
		if res.Error != nil {
			return nil, res.Error
		}

		if res.RowsAffected == 0 {
			return nil, ErrExpertNotFound
		}

		return nil, nil
	})

	return err
}
