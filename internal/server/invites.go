package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
)

type issueInviteRequest struct {
	IssuerExternalID    string `json:"issuer_external_id"`
	RecipientExternalID string `json:"recipient_external_id"`
	TTL                 string `json:"ttl,omitempty"`
	UseLimit            *int   `json:"use_limit,omitempty"`
}

func (s *Server) IssueInvite(c *gin.Context) {
	var req issueInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.IssuerExternalID) == "" {
		AbortWithError(c, newValidationError("issuer_external_id", "required", "issuer external id is required"))
		return
	}
	if strings.TrimSpace(req.RecipientExternalID) == "" {
		AbortWithError(c, newValidationError("recipient_external_id", "required", "recipient external id is required"))
		return
	}

	var ttl *time.Duration
	if strings.TrimSpace(req.TTL) != "" {
		parsed, err := time.ParseDuration(req.TTL)
		if err != nil || parsed <= 0 {
			AbortWithError(c, newValidationError("ttl", "invalid_duration", "ttl must be a positive duration"))
			return
		}
		ttl = &parsed
	}

	url, err := s.workflowSvc.IssueInvite(c.Request.Context(), workflowdomain.IssueInviteRequest{
		IssuerExternalID:    strings.TrimSpace(req.IssuerExternalID),
		RecipientExternalID: strings.TrimSpace(req.RecipientExternalID),
		TTL:                 ttl,
		UseLimit:            req.UseLimit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func (s *Server) InviteValidity(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Param("id"))
	if tokenID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	valid, err := s.inviteSvc.Validate(c.Request.Context(), tokenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

func (s *Server) RevokeInvite(c *gin.Context) {
	tokenID := strings.TrimSpace(c.Param("id"))
	if tokenID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "revoked_by_operator"
	}

	if err := s.inviteSvc.Revoke(c.Request.Context(), tokenID, reason); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
