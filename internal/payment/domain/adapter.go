package domain

import (
	"context"
	"net/http"
)

// Adapter translates one provider's webhook wire format into canonical
// events. Verify must run against the raw, unparsed body; parsing before
// verifying would void the signature check.
type Adapter interface {
	Provider() string
	Verify(ctx context.Context, payload []byte, headers http.Header) error

	// Parse returns ErrEventIgnored (with ProviderEventID populated on the
	// returned event) for types this system does not reconcile.
	Parse(ctx context.Context, payload []byte) (*Event, error)
}

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
