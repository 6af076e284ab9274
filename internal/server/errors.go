package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	organizationdomain "github.com/teamride-labs/teamride/internal/organization/domain"
	paymentdomain "github.com/teamride-labs/teamride/internal/payment/domain"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
	quotadomain "github.com/teamride-labs/teamride/internal/quota/domain"
	subscriptiondomain "github.com/teamride-labs/teamride/internal/subscription/domain"
)

var ErrInvalidRequest = errors.New("invalid_request")

// statusFor maps domain sentinels to HTTP statuses. Anything unmapped is a
// 500 so transient failures stay retryable from the caller's side.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, plandomain.ErrInvalidPlan),
		errors.Is(err, organizationdomain.ErrInvalidName),
		errors.Is(err, quotadomain.ErrInvalidInvitationCount),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrMissingMetadata):
		return http.StatusBadRequest
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, organizationdomain.ErrOrganizationNotFound),
		errors.Is(err, quotadomain.ErrOrganizationNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, quotadomain.ErrQuotaExceeded),
		errors.Is(err, quotadomain.ErrSubscriptionNotActive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func AbortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal_error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": message}})
}
