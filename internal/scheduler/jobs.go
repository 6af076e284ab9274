package scheduler

import (
	"context"
	"errors"
	"time"

	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	jobExpire   = "expire_subscriptions"
	jobRemind   = "renewal_reminders"
	jobLedgerGC = "ledger_retention"
)

// ExpireSubscriptionsJob downgrades paid records whose period has elapsed
// back to the free tier. A record that renews between the listing and the
// downgrade is left alone; ExpireToFree re-checks inside its transaction.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) int {
	now := s.clock.Now(ctx)
	free := s.catalog.FreePlan()

	records, err := s.subRepo.ListExpired(ctx, s.db, free.ID, now)
	if err != nil {
		s.log.Error("expiration listing failed", zap.Error(err))
		s.count(jobExpire, "error")
		return 0
	}

	expired := 0
	for _, rec := range records {
		prevPlan := rec.PlanID
		if _, err := s.subSvc.ExpireToFree(ctx, rec.OrgID, now); err != nil {
			if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) {
				// renewed or canceled since the listing
				s.count(jobExpire, "skipped")
				continue
			}
			s.log.Error("expiration failed",
				zap.Int64("org_id", int64(rec.OrgID)),
				zap.Error(err))
			s.count(jobExpire, "error")
			continue
		}
		expired++
		s.count(jobExpire, "expired")
		s.log.Info("subscription expired to free tier",
			zap.Int64("org_id", int64(rec.OrgID)),
			zap.String("plan_id", string(prevPlan)))
		s.notifier.SubscriptionExpired(ctx, rec.OrgID, prevPlan)
	}
	return expired
}

// RenewalRemindersJob sends at most one reminder per organization, threshold
// and calendar day for paid records approaching their period end. The
// dispatch-log insert is the dedup gate, so a sweep that crashes after the
// insert drops that reminder rather than doubling it.
func (s *Scheduler) RenewalRemindersJob(ctx context.Context) int {
	now := s.clock.Now(ctx)
	free := s.catalog.FreePlan()

	records, err := s.subRepo.ListActivePaid(ctx, s.db, free.ID)
	if err != nil {
		s.log.Error("reminder listing failed", zap.Error(err))
		s.count(jobRemind, "error")
		return 0
	}

	sent := 0
	for _, rec := range records {
		if rec.PeriodEnd == nil {
			continue
		}
		days, ok := daysUntil(now, *rec.PeriodEnd)
		if !ok {
			continue
		}
		threshold, ok := matchThreshold(days, s.cfg.ReminderThresholds)
		if !ok {
			continue
		}
		fresh, err := s.recordDispatch(ctx, rec, threshold, now)
		if err != nil {
			s.log.Error("reminder dispatch log insert failed",
				zap.Int64("org_id", int64(rec.OrgID)),
				zap.Error(err))
			s.count(jobRemind, "error")
			continue
		}
		if !fresh {
			s.count(jobRemind, "deduped")
			continue
		}
		sent++
		s.count(jobRemind, "sent")
		s.log.Info("renewal reminder dispatched",
			zap.Int64("org_id", int64(rec.OrgID)),
			zap.String("plan_id", string(rec.PlanID)),
			zap.Int("days_left", threshold))
		s.notifier.RenewalReminder(ctx, rec.OrgID, rec.PlanID, threshold)
	}
	return sent
}

// PruneWebhookLedgerJob drops settled ledger entries past the retention
// window. Pending entries survive regardless of age.
func (s *Scheduler) PruneWebhookLedgerJob(ctx context.Context) int64 {
	if s.webhook.LedgerRetention <= 0 {
		return 0
	}
	cutoff := s.clock.Now(ctx).Add(-s.webhook.LedgerRetention)
	deleted, err := s.ledger.DeleteOlderThan(ctx, s.db, cutoff)
	if err != nil {
		s.log.Error("ledger retention failed", zap.Error(err))
		s.count(jobLedgerGC, "error")
		return 0
	}
	if deleted > 0 {
		s.count(jobLedgerGC, "pruned")
		s.log.Info("webhook ledger pruned", zap.Int64("deleted", deleted))
	}
	return deleted
}

func (s *Scheduler) recordDispatch(ctx context.Context, rec subscriptiondomain.Record, threshold int, now time.Time) (bool, error) {
	entry := ReminderDispatchLog{
		ID:            s.genID.Generate(),
		OrgID:         rec.OrgID,
		ThresholdDays: threshold,
		CalendarDate:  now.UTC().Format("2006-01-02"),
		DispatchedAt:  now,
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// daysUntil reports the whole days remaining, rounded up so a period ending
// in 6.5 days counts as 7. Elapsed periods report false; the expiration
// pass owns those.
func daysUntil(now, periodEnd time.Time) (int, bool) {
	remaining := periodEnd.Sub(now)
	if remaining <= 0 {
		return 0, false
	}
	days := int((remaining + 24*time.Hour - 1) / (24 * time.Hour))
	return days, true
}

func matchThreshold(days int, thresholds []int) (int, bool) {
	for _, t := range thresholds {
		if days == t {
			return t, true
		}
	}
	return 0, false
}
