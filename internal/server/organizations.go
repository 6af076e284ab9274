package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	organizationdomain "github.com/teamride-labs/teamride/internal/organization/domain"
)

type createOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateOrganization
// POST /v1/organizations
func (s *Server) CreateOrganization(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	org, err := s.orgSvc.Create(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, org)
}

// GetOrganization
// GET /v1/organizations/:id
func (s *Server) GetOrganization(c *gin.Context) {
	orgID, ok := s.orgIDParam(c)
	if !ok {
		return
	}
	org, err := s.orgSvc.Get(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, org)
}

// GetSubscription
// GET /v1/organizations/:id/subscription
func (s *Server) GetSubscription(c *gin.Context) {
	orgID, ok := s.orgIDParam(c)
	if !ok {
		return
	}
	rec, err := s.subSvc.GetByOrgID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, rec)
}

// GetQuota
// GET /v1/organizations/:id/quota
//
// Advisory only. The atomic check happens on consumption, so a 200 here
// never guarantees the next create will pass.
func (s *Server) GetQuota(c *gin.Context) {
	orgID, ok := s.orgIDParam(c)
	if !ok {
		return
	}
	event, err := s.quotaSvc.CanCreateEvent(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	invitation, err := s.quotaSvc.CanSendInvitations(c.Request.Context(), orgID, 1)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respondData(c, gin.H{
		"event":      event,
		"invitation": invitation,
	})
}

func (s *Server) orgIDParam(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, organizationdomain.ErrOrganizationNotFound)
		return 0, false
	}
	return id, true
}
