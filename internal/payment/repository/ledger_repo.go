package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LedgerRepository struct{}

func NewLedgerRepository() domain.LedgerRepository {
	return &LedgerRepository{}
}

func (r *LedgerRepository) BeginProcessing(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	entry.Outcome = domain.OutcomePending

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return entry, true, nil
	}

	var existing domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("provider_event_id = ?", entry.ProviderEventID).
		First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Lost the insert race and the winner rolled back; treat as fresh
			// on the retry the provider will send anyway.
			return nil, false, domain.ErrEventAlreadyProcessed
		}
		return nil, false, err
	}
	return &existing, false, nil
}

func (r *LedgerRepository) Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID, now, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("id = ? AND (outcome = ? OR (outcome = ? AND received_at < ?))",
			id, domain.OutcomeFailed, domain.OutcomePending, staleBefore).
		UpdateColumns(map[string]any{
			"outcome":     domain.OutcomePending,
			"received_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *LedgerRepository) MarkOutcome(ctx context.Context, db *gorm.DB, id snowflake.ID, outcome domain.LedgerOutcome, processedAt time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"outcome":      outcome,
			"processed_at": processedAt,
		}).Error
}

func (r *LedgerRepository) DeleteOlderThan(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("received_at < ? AND outcome <> ?", cutoff, domain.OutcomePending).
		Delete(&domain.LedgerEntry{})
	return res.RowsAffected, res.Error
}
