package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/clock"
	"github.com/teamride-labs/teamride/internal/config"
	"github.com/teamride-labs/teamride/internal/observability"
	"github.com/teamride-labs/teamride/internal/payment/adapters"
	paymentdomain "github.com/teamride-labs/teamride/internal/payment/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"

	notificationdomain "github.com/teamride-labs/teamride/internal/notification/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// reclaimGrace pads the processing timeout before a pending ledger row
// counts as abandoned and becomes reclaimable.
const reclaimGrace = 30 * time.Second

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Adapters *adapters.Registry
	Ledger   paymentdomain.LedgerRepository
	SubSvc   subscriptiondomain.Service
	Notifier notificationdomain.Notifier
	Metrics  *observability.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	timeout  time.Duration
	adapters *adapters.Registry
	ledger   paymentdomain.LedgerRepository
	subSvc   subscriptiondomain.Service
	notifier notificationdomain.Notifier
	metrics  *observability.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.webhook"),
		genID:    p.GenID,
		clock:    p.Clock,
		timeout:  p.Cfg.Webhook.ProcessingTimeout,
		adapters: p.Adapters,
		ledger:   p.Ledger,
		subSvc:   p.SubSvc,
		notifier: p.Notifier,
		metrics:  p.Metrics,
	}
}

// IngestWebhook verifies, deduplicates and applies one provider delivery.
// Signature failures never touch the ledger; everything after verification
// is recorded there so retried deliveries settle as no-ops.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	adapter, ok := s.adapters.Get(provider)
	if !ok {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	// The provider enforces its own delivery timeout; hanging past it gets
	// the endpoint flagged unhealthy.
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("webhook signature rejected", zap.String("provider", provider))
		s.count(provider, "rejected")
		return err
	}

	event, parseErr := adapter.Parse(ctx, payload)
	if parseErr != nil && !errors.Is(parseErr, paymentdomain.ErrEventIgnored) {
		s.log.Error("webhook parse failed",
			zap.String("provider", provider),
			zap.Error(parseErr))
		s.count(provider, "invalid")
		return parseErr
	}

	now := s.clock.Now(ctx)
	entry := &paymentdomain.LedgerEntry{
		ID:              s.genID.Generate(),
		Provider:        provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		OrgID:           event.OrgID,
		Payload:         payload,
		ReceivedAt:      now,
	}

	existing, fresh, err := s.ledger.BeginProcessing(ctx, s.db, entry)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			return nil
		}
		return err
	}
	if !fresh {
		switch existing.Outcome {
		case paymentdomain.OutcomeApplied, paymentdomain.OutcomeIgnored:
			s.log.Debug("duplicate webhook delivery",
				zap.String("provider", provider),
				zap.String("provider_event_id", event.ProviderEventID))
			s.count(provider, "duplicate")
			return nil
		default:
			// failed, or pending from an abandoned run. Reclaim before
			// reprocessing: a pending row another delivery is working on
			// right now stays theirs, and the provider retries this copy
			// later.
			staleBefore := now.Add(-(s.timeout + reclaimGrace))
			ok, err := s.ledger.Reclaim(ctx, s.db, existing.ID, now, staleBefore)
			if err != nil {
				return err
			}
			if !ok {
				s.log.Debug("webhook delivery still in flight",
					zap.String("provider", provider),
					zap.String("provider_event_id", event.ProviderEventID))
				s.count(provider, "in_flight")
				return paymentdomain.ErrEventInFlight
			}
			entry = existing
		}
	}

	if errors.Is(parseErr, paymentdomain.ErrEventIgnored) {
		s.settle(ctx, entry.ID, paymentdomain.OutcomeIgnored)
		s.count(provider, "ignored")
		return nil
	}

	if err := s.apply(ctx, event); err != nil {
		if errors.Is(err, subscriptiondomain.ErrInvalidTransition) {
			// Redelivery can never make an invalid transition valid.
			s.settle(ctx, entry.ID, paymentdomain.OutcomeIgnored)
			s.count(provider, "ignored")
			return nil
		}
		s.settle(ctx, entry.ID, paymentdomain.OutcomeFailed)
		s.count(provider, "failed")
		s.log.Error("webhook processing failed",
			zap.String("provider", provider),
			zap.String("provider_event_id", event.ProviderEventID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		return err
	}

	s.settle(ctx, entry.ID, paymentdomain.OutcomeApplied)
	s.count(provider, "applied")
	return nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.Event) error {
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		rec, err := s.subSvc.ActivateFromCheckout(ctx, subscriptiondomain.CheckoutActivation{
			OrgID:                   event.OrgID,
			PlanID:                  event.PlanID,
			ExternalCustomerRef:     event.ExternalCustomerRef,
			ExternalSubscriptionRef: event.ExternalSubscriptionRef,
			CheckoutSessionRef:      event.CheckoutSessionRef,
			OccurredAt:              event.OccurredAt,
		})
		if err != nil {
			return err
		}
		s.notifier.SubscriptionActivated(ctx, rec.OrgID, rec.PlanID)
		return nil

	case paymentdomain.EventTypePaymentSucceeded:
		_, err := s.subSvc.MarkPaymentSucceeded(ctx, event.ExternalSubscriptionRef, event.OccurredAt)
		return err

	case paymentdomain.EventTypePaymentFailed:
		_, err := s.subSvc.MarkPaymentFailed(ctx, event.ExternalSubscriptionRef, event.OccurredAt)
		return err

	case paymentdomain.EventTypeSubscriptionCanceled:
		_, err := s.subSvc.CancelByExternalRef(ctx, event.ExternalSubscriptionRef, event.OccurredAt)
		return err

	default:
		return paymentdomain.ErrInvalidEvent
	}
}

// settle updates the ledger outcome on a fresh context: the processing
// deadline may already be spent, and losing the outcome would replay the
// event as pending forever.
func (s *Service) settle(ctx context.Context, id snowflake.ID, outcome paymentdomain.LedgerOutcome) {
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.ledger.MarkOutcome(settleCtx, s.db, id, outcome, s.clock.Now(ctx)); err != nil {
		s.log.Error("failed to settle webhook ledger entry",
			zap.Int64("ledger_id", int64(id)),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
	}
}

func (s *Service) count(provider, outcome string) {
	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(provider, outcome).Inc()
	}
}
