package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandleProviderWebhook
// POST /v1/webhooks/:provider
//
// Always answers 200 for deliveries the reconciler settled, including
// duplicates and event types it ignores. Anything transient gets a 5xx so
// the provider retries.
func (s *Server) HandleProviderWebhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := c.GetRawData()
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error("webhook ingestion failed",
				zap.String("provider", provider),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": "retryable"}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
