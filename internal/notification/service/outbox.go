package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/teamride-labs/teamride/internal/clock"
	notificationdomain "github.com/teamride-labs/teamride/internal/notification/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// OutboxKey is the redis list the mailer consumes from.
const OutboxKey = "teamride:notifications:outbox"

const dispatchTimeout = 3 * time.Second

// Envelope is the message handed to the mailer. Template selection and
// rendering happen on the consumer side.
type Envelope struct {
	Kind     string            `json:"kind"`
	OrgID    string            `json:"org_id"`
	PlanID   string            `json:"plan_id"`
	Fields   map[string]string `json:"fields,omitempty"`
	QueuedAt time.Time         `json:"queued_at"`
}

const (
	KindSubscriptionActivated = "subscription_activated"
	KindSubscriptionExpired   = "subscription_expired"
	KindRenewalReminder       = "renewal_reminder"
)

type OutboxParam struct {
	fx.In

	Redis *redis.Client
	Log   *zap.Logger
	Clock clock.Clock
}

type outbox struct {
	redis *redis.Client
	log   *zap.Logger
	clock clock.Clock
}

func NewOutbox(p OutboxParam) notificationdomain.Notifier {
	return &outbox{
		redis: p.Redis,
		log:   p.Log.Named("notification.outbox"),
		clock: p.Clock,
	}
}

func (o *outbox) SubscriptionActivated(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID) {
	o.enqueue(ctx, Envelope{Kind: KindSubscriptionActivated, OrgID: orgID.String(), PlanID: string(planID)})
}

func (o *outbox) SubscriptionExpired(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID) {
	o.enqueue(ctx, Envelope{Kind: KindSubscriptionExpired, OrgID: orgID.String(), PlanID: string(planID)})
}

func (o *outbox) RenewalReminder(ctx context.Context, orgID snowflake.ID, planID plandomain.PlanID, daysLeft int) {
	o.enqueue(ctx, Envelope{
		Kind:   KindRenewalReminder,
		OrgID:  orgID.String(),
		PlanID: string(planID),
		Fields: map[string]string{"days_left": strconv.Itoa(daysLeft)},
	})
}

// enqueue is fire-and-forget: a dead redis costs a notification, never a
// billing state transition.
func (o *outbox) enqueue(ctx context.Context, env Envelope) {
	env.QueuedAt = o.clock.Now(ctx)

	payload, err := json.Marshal(env)
	if err != nil {
		o.log.Error("failed to encode notification", zap.Error(err))
		return
	}

	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()
	if err := o.redis.RPush(pushCtx, OutboxKey, payload).Err(); err != nil {
		o.log.Error("failed to enqueue notification",
			zap.String("kind", env.Kind),
			zap.String("org_id", env.OrgID),
			zap.Error(err))
	}
}
