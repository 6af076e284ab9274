package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	"gorm.io/datatypes"
)

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrEventInFlight         = errors.New("event_in_flight")
	ErrMissingMetadata       = errors.New("missing_checkout_metadata")
)

const (
	EventTypeCheckoutCompleted    = "checkout_completed"
	EventTypePaymentSucceeded     = "payment_succeeded"
	EventTypePaymentFailed        = "payment_failed"
	EventTypeSubscriptionCanceled = "subscription_canceled"
)

// Event is the canonical provider-agnostic webhook event produced by
// adapters. OrgID and PlanID come from the checkout metadata the provider
// echoes back; the refs are opaque provider identifiers.
type Event struct {
	Provider        string
	ProviderEventID string
	Type            string

	OrgID  snowflake.ID
	PlanID plandomain.PlanID

	ExternalCustomerRef     string
	ExternalSubscriptionRef string
	CheckoutSessionRef      string

	OccurredAt time.Time
	RawPayload []byte
}

type LedgerOutcome string

const (
	OutcomePending LedgerOutcome = "pending"
	OutcomeApplied LedgerOutcome = "applied"
	OutcomeIgnored LedgerOutcome = "ignored"
	OutcomeFailed  LedgerOutcome = "failed"
)

// LedgerEntry is the append-only idempotency record for webhook deliveries.
// The unique provider_event_id makes the insert the dedup gate: providers
// deliver at-least-once and retries are the normal case.
type LedgerEntry struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Provider        string         `json:"provider" gorm:"type:varchar(50);not null"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	EventType       string         `json:"event_type" gorm:"type:varchar(64);not null"`
	OrgID           snowflake.ID   `json:"org_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Outcome         LedgerOutcome  `json:"outcome" gorm:"type:varchar(20);not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null;index"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (LedgerEntry) TableName() string { return "webhook_event_ledger" }
