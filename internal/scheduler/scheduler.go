package scheduler

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	notificationdomain "github.com/teamride-labs/teamride/internal/notification/domain"
	"github.com/teamride-labs/teamride/internal/observability"
	paymentdomain "github.com/teamride-labs/teamride/internal/payment/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Catalog  plandomain.Catalog
	SubRepo  subscriptiondomain.Repository
	SubSvc   subscriptiondomain.Service
	Ledger   paymentdomain.LedgerRepository
	Notifier notificationdomain.Notifier
	Redis    *redis.Client
	Metrics  *observability.Metrics `optional:"true"`
}

// Scheduler runs the periodic billing sweep: expiring lapsed subscriptions,
// dispatching renewal reminders and pruning the webhook ledger. All
// time-based transitions live here; request handling never does them.
type Scheduler struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.SchedulerConfig
	webhook  config.WebhookConfig
	catalog  plandomain.Catalog
	subRepo  subscriptiondomain.Repository
	subSvc   subscriptiondomain.Service
	ledger   paymentdomain.LedgerRepository
	notifier notificationdomain.Notifier
	lock     *leaderLock
	metrics  *observability.Metrics

	cron *cron.Cron
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:       p.DB,
		log:      p.Log.Named("scheduler"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg.Scheduler,
		webhook:  p.Cfg.Webhook,
		catalog:  p.Catalog,
		subRepo:  p.SubRepo,
		subSvc:   p.SubSvc,
		ledger:   p.Ledger,
		notifier: p.Notifier,
		lock:     newLeaderLock(p.Redis, p.Cfg.Scheduler.LeaderLockTTL, p.GenID.Generate().String()),
		metrics:  p.Metrics,
	}
}

// Start registers the sweep on its cron schedule. Returns after scheduling;
// jobs run on the cron goroutine.
func (s *Scheduler) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.SweepSchedule, func() {
		s.RunSweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("scheduler started", zap.String("schedule", s.cfg.SweepSchedule))
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}
	s.lock.Release(ctx)
	return nil
}

// RunSweep executes one full sweep if this instance holds the cluster-wide
// leader lock. Without the lock the reminder log could still race between
// two sweepers; its unique index backstops that, the lock avoids the noise.
func (s *Scheduler) RunSweep(ctx context.Context) {
	leader, err := s.lock.Acquire(ctx)
	if err != nil {
		s.log.Error("leader lock check failed", zap.Error(err))
		return
	}
	if !leader {
		s.log.Debug("skipping sweep, another instance leads")
		return
	}

	started := s.clock.Now(ctx)
	s.log.Info("sweep started")

	expired := s.ExpireSubscriptionsJob(ctx)
	reminders := s.RenewalRemindersJob(ctx)
	pruned := s.PruneWebhookLedgerJob(ctx)

	s.log.Info("sweep finished",
		zap.Int("expired", expired),
		zap.Int("reminders", reminders),
		zap.Int64("ledger_pruned", pruned),
		zap.Duration("took", s.clock.Now(ctx).Sub(started)))
}

func (s *Scheduler) count(job, result string) {
	if s.metrics != nil {
		s.metrics.SweepTransitions.WithLabelValues(job, result).Inc()
	}
}
