package server

import (
	"github.com/gin-gonic/gin"
	plandomain "github.com/teamride-labs/teamride/internal/plan/domain"
)

type createCheckoutSessionRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// CreateCheckoutSession
// POST /v1/organizations/:id/checkout
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	orgID, ok := s.orgIDParam(c)
	if !ok {
		return
	}

	var req createCheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	session, err := s.checkoutSvc.CreateSession(c.Request.Context(), orgID, plandomain.PlanID(req.PlanID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, session)
}

// ListPlans
// GET /v1/plans
func (s *Server) ListPlans(c *gin.Context) {
	respondData(c, s.catalog.List())
}
