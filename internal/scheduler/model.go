package scheduler

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ReminderDispatchLog guarantees at most one reminder per organization,
// threshold and calendar day. The unique index is the gate: the insert wins
// or the reminder was already sent.
type ReminderDispatchLog struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey;autoIncrement:false"`
	OrgID         snowflake.ID `json:"org_id" gorm:"not null;uniqueIndex:idx_reminder_dispatch"`
	ThresholdDays int          `json:"threshold_days" gorm:"not null;uniqueIndex:idx_reminder_dispatch"`
	CalendarDate  string       `json:"calendar_date" gorm:"type:varchar(10);not null;uniqueIndex:idx_reminder_dispatch"`
	DispatchedAt  time.Time    `json:"dispatched_at" gorm:"not null"`
}

func (ReminderDispatchLog) TableName() string { return "reminder_dispatch_log" }
