package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/teamride-labs/teamride/internal/clock"
	paymentdomain "github.com/teamride-labs/teamride/internal/payment/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
	clock         clock.Clock
}

func NewAdapter(webhookSecret string, tolerance time.Duration, clk clock.Clock) *Adapter {
	return &Adapter{
		webhookSecret: strings.TrimSpace(webhookSecret),
		tolerance:     tolerance,
		clock:         clk,
	}
}

func (a *Adapter) Provider() string { return "stripe" }

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}

	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	if a.tolerance > 0 {
		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			return paymentdomain.ErrInvalidSignature
		}
		age := a.clock.Now(ctx).Sub(time.Unix(ts, 0))
		if age > a.tolerance || age < -a.tolerance {
			return paymentdomain.ErrInvalidSignature
		}
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.Event, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutCompleted(event, payload)
	case "invoice.payment_succeeded":
		return a.parseInvoiceEvent(event, payload, paymentdomain.EventTypePaymentSucceeded)
	case "invoice.payment_failed":
		return a.parseInvoiceEvent(event, payload, paymentdomain.EventTypePaymentFailed)
	case "customer.subscription.deleted":
		return a.parseSubscriptionDeleted(event, payload)
	default:
		return &paymentdomain.Event{
			Provider:        a.Provider(),
			ProviderEventID: event.ID,
			Type:            event.Type,
		}, paymentdomain.ErrEventIgnored
	}
}

func (a *Adapter) parseCheckoutCompleted(event stripeEvent, payload []byte) (*paymentdomain.Event, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}

	// The checkout creation attaches organization_id and plan_id as opaque
	// metadata; the provider echoes them back verbatim here.
	orgIDStr := readMetadataValue(session.Metadata, "organization_id")
	planIDStr := readMetadataValue(session.Metadata, "plan_id")
	if orgIDStr == "" || planIDStr == "" {
		return nil, paymentdomain.ErrMissingMetadata
	}

	orgID, err := snowflake.ParseString(orgIDStr)
	if err != nil {
		return nil, paymentdomain.ErrMissingMetadata
	}

	return &paymentdomain.Event{
		Provider:                a.Provider(),
		ProviderEventID:         event.ID,
		Type:                    paymentdomain.EventTypeCheckoutCompleted,
		OrgID:                   orgID,
		PlanID:                  plandomain.PlanID(planIDStr),
		ExternalCustomerRef:     session.Customer,
		ExternalSubscriptionRef: session.Subscription,
		CheckoutSessionRef:      session.ID,
		OccurredAt:              eventTime(event.Created),
		RawPayload:              payload,
	}, nil
}

func (a *Adapter) parseInvoiceEvent(event stripeEvent, payload []byte, eventType string) (*paymentdomain.Event, error) {
	var invoice stripeInvoice
	if err := json.Unmarshal(event.Data.Object, &invoice); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(invoice.Subscription) == "" {
		// Invoices without a subscription (one-off charges) are settled by
		// the checkout completion event instead.
		return &paymentdomain.Event{
			Provider:        a.Provider(),
			ProviderEventID: event.ID,
			Type:            event.Type,
		}, paymentdomain.ErrEventIgnored
	}

	return &paymentdomain.Event{
		Provider:                a.Provider(),
		ProviderEventID:         event.ID,
		Type:                    eventType,
		ExternalCustomerRef:     invoice.Customer,
		ExternalSubscriptionRef: invoice.Subscription,
		OccurredAt:              eventTime(event.Created),
		RawPayload:              payload,
	}, nil
}

func (a *Adapter) parseSubscriptionDeleted(event stripeEvent, payload []byte) (*paymentdomain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(sub.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	return &paymentdomain.Event{
		Provider:                a.Provider(),
		ProviderEventID:         event.ID,
		Type:                    paymentdomain.EventTypeSubscriptionCanceled,
		ExternalCustomerRef:     sub.Customer,
		ExternalSubscriptionRef: sub.ID,
		OccurredAt:              eventTime(event.Created),
		RawPayload:              payload,
	}, nil
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeCheckoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type stripeSubscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, paymentdomain.ErrInvalidSignature
	}
	return timestamp, signatures, nil
}

func readMetadataValue(metadata map[string]string, key string) string {
	if metadata == nil {
		return ""
	}
	return strings.TrimSpace(metadata[key])
}

func eventTime(created int64) time.Time {
	if created == 0 {
		return time.Time{}
	}
	return time.Unix(created, 0).UTC()
}
