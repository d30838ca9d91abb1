package session

import (
	"time"

	"gorm.io/datatypes"
)

// Session status state machine:
// pending_payment -> scheduled -> completed, with cancelled reachable from
// pending_payment and scheduled. completed and cancelled are terminal.
const (
	StatusPendingPayment = "pending_payment"
	StatusScheduled      = "scheduled"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

const (
	UrgencyASAP     = "asap"
	UrgencyToday    = "today"
	UrgencyThisWeek = "this_week"
)

type Session struct {
	ID       string  `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	BuyerID  string  `gorm:"column:buyer_id;type:varchar(36);not null;index" json:"buyer_id"`
	ExpertID *string `gorm:"column:expert_id;type:varchar(36);index" json:"expert_id"`

	ProblemTitle       string         `gorm:"column:problem_title;type:text"       json:"problem_title"`
	ProblemDescription string         `gorm:"column:problem_description;type:text" json:"problem_description"`
	ProblemCategory    string         `gorm:"column:problem_category;type:varchar(40)" json:"problem_category"`
	ProblemStructured  datatypes.JSON `gorm:"column:problem_structured;type:jsonb" json:"problem_structured"`

	DurationMinutes int     `gorm:"column:duration_minutes;not null" json:"duration_minutes"`
	PriceGBP        float64 `gorm:"column:price_gbp"                 json:"price_gbp"`
	PlatformFeeGBP  float64 `gorm:"column:platform_fee_gbp"          json:"platform_fee_gbp"`
	ExpertPayoutGBP float64 `gorm:"column:expert_payout_gbp"         json:"expert_payout_gbp"`

	ScheduledTime *time.Time `gorm:"column:scheduled_time" json:"scheduled_time"`
	Urgency       string     `gorm:"column:urgency;type:varchar(20);default:'this_week'" json:"urgency"`

	Status          string                      `gorm:"column:status;type:varchar(20);default:'pending_payment';not null;index" json:"status"`
	AISummary       string                      `gorm:"column:ai_summary;type:text"    json:"ai_summary"`
	ActionItems     datatypes.JSONSlice[string] `gorm:"column:action_items;type:jsonb" json:"action_items"`
	ProblemResolved bool                        `gorm:"column:problem_resolved;default:false" json:"problem_resolved"`
	BuyerRating     *int                        `gorm:"column:buyer_rating"  json:"buyer_rating"`
	BuyerFeedback   *string                     `gorm:"column:buyer_feedback;type:text" json:"buyer_feedback"`

	CreatedAt *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsTerminal reports whether no further transition is reachable.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// CanCancel reports whether a session in the given status may be cancelled.
func CanCancel(status string) bool {
	return status == StatusPendingPayment || status == StatusScheduled
}

// ValidUrgency reports whether the urgency value is one the engine knows.
func ValidUrgency(urgency string) bool {
	switch urgency {
	case UrgencyASAP, UrgencyToday, UrgencyThisWeek:
		return true
	default:
		return false
	}
}
