package clock

import (
	"context"
	"time"
)

// Clock abstracts wall time so quota windows, expiry sweeps and webhook
// timestamps can be pinned in tests.
type Clock interface {
	Now(ctx context.Context) time.Time
}
