package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type LedgerRepository interface {
	// BeginProcessing inserts entry as pending. When the provider event id
	// was already seen, the insert is a no-op and the existing row is
	// returned with fresh=false.
	BeginProcessing(ctx context.Context, db *gorm.DB, entry *LedgerEntry) (existing *LedgerEntry, fresh bool, err error)

	MarkOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome LedgerOutcome, processedAt time.Time) error

	// Reclaim takes ownership of a failed row, or of a pending row received
	// before staleBefore (an abandoned run). A pending row received after
	// staleBefore belongs to a delivery still in flight and is not
	// reclaimable. The conditional update makes exactly one caller win.
	Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error)

	// DeleteOlderThan prunes settled entries past the retention window.
	DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)
}
