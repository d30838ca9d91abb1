package outbox

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
)

// PendingEvent is a lifecycle event whose Kafka publish failed. The worker
// replays pending rows until the publish succeeds or retries run out.
type PendingEvent struct {
	ID          string         `gorm:"column:id;type:varchar(36);primaryKey;not null"`
	EventType   string         `gorm:"column:event_type;type:varchar(40);not null"`
	Msg         datatypes.JSON `gorm:"column:msg;type:jsonb;not null"`
	Error       string         `gorm:"column:error;type:text;not null"`
	Status      string         `gorm:"column:status;type:varchar(20);default:'pending';not null"`
	RetryCount  int            `gorm:"column:retry_count;type:int;default:0;not null"`
	LastRetryAt *time.Time     `gorm:"column:last_retry_at;type:timestamp"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (PendingEvent) TableName() string {
	return "event_outbox"
}
