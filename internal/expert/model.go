package expert

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusSuspended = "suspended"
)

// AvailabilitySlot is one weekly availability window, expert-local time.
type AvailabilitySlot struct {
	Day       string `json:"day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type Expert struct {
	ID     string `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(36);uniqueIndex;not null" json:"user_id"`
	Status string `gorm:"column:status;type:varchar(20);default:'pending';not null" json:"status"`

	Positioning     string                                  `gorm:"column:positioning;type:text"       json:"positioning"`
	Bio             string                                  `gorm:"column:bio;type:text"               json:"bio"`
	ExpertiseAreas  datatypes.JSONSlice[string]             `gorm:"column:expertise_areas;type:jsonb"  json:"expertise_areas"`
	ExampleProblems datatypes.JSONSlice[string]             `gorm:"column:example_problems;type:jsonb" json:"example_problems"`
	YearsExperience int                                     `gorm:"column:years_experience"            json:"years_experience"`
	LinkedinURL     string                                  `gorm:"column:linkedin_url;type:text"      json:"linkedin_url"`
	PortfolioURL    string                                  `gorm:"column:portfolio_url;type:text"     json:"portfolio_url"`

	Rate10Min float64 `gorm:"column:rate_10min" json:"rate_10min"`
	Rate20Min float64 `gorm:"column:rate_20min" json:"rate_20min"`

	AvailabilitySlots datatypes.JSONSlice[AvailabilitySlot] `gorm:"column:availability_slots;type:jsonb" json:"availability_slots"`
	AcceptASAPCalls   bool                                  `gorm:"column:accept_asap_calls;default:false" json:"accept_asap_calls"`
	Timezone          string                                `gorm:"column:timezone;type:varchar(64);default:'Europe/London'" json:"timezone"`

	// Reputation fields. average_rating and nps_score are written only by
	// the rating aggregator; total_sessions only by session completion.
	TotalSessions int     `gorm:"column:total_sessions;default:0" json:"total_sessions"`
	AverageRating float64 `gorm:"column:average_rating;default:0" json:"average_rating"`
	NPSScore      float64 `gorm:"column:nps_score;default:0"      json:"nps_score"`

	CreatedAt *time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Expert) TableName() string {
	return "experts"
}

// IsMatchable reports whether the expert may appear in matching results or
// accept bookings. Only approved experts qualify.
func (e *Expert) IsMatchable() bool {
	return e.Status == StatusApproved
}

// CanTransition reports whether a vetting status change is legal:
// pending -> approved|rejected, approved -> suspended. Rejected and
// suspended are terminal.
func CanTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected
	case StatusApproved:
		return to == StatusSuspended
	default:
		return false
	}
}
