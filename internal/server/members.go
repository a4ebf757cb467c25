package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/velvetlounge/gatekeeper/internal/access"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
	"github.com/velvetlounge/gatekeeper/pkg/db/pagination"
)

type intakeRequest struct {
	ExternalID    string `json:"external_id"`
	DisplayName   string `json:"display_name"`
	InviteTokenID string `json:"invite_token_id,omitempty"`
}

type memberResponse struct {
	ID                   string     `json:"id"`
	ExternalID           string     `json:"external_id"`
	DisplayName          string     `json:"display_name"`
	Status               string     `json:"status"`
	Verified             bool       `json:"verified"`
	HasActiveEntitlement bool       `json:"has_active_entitlement"`
	EntitlementPlan      *string    `json:"entitlement_plan,omitempty"`
	JoinedAt             time.Time  `json:"joined_at"`
	LeftAt               *time.Time `json:"left_at,omitempty"`
	RemovalReason        *string    `json:"removal_reason,omitempty"`
	WarningCount         int        `json:"warning_count"`
}

func toMemberResponse(m memberdomain.Member) memberResponse {
	return memberResponse{
		ID:                   m.ID.String(),
		ExternalID:           m.ExternalID,
		DisplayName:          m.DisplayName,
		Status:               string(m.Status),
		Verified:             m.Verified,
		HasActiveEntitlement: m.HasActiveEntitlement,
		EntitlementPlan:      m.EntitlementPlan,
		JoinedAt:             m.JoinedAt,
		LeftAt:               m.LeftAt,
		RemovalReason:        m.RemovalReason,
		WarningCount:         m.WarningCount,
	}
}

func (s *Server) Intake(c *gin.Context) {
	var req intakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		AbortWithError(c, newValidationError("external_id", "required", "external id is required"))
		return
	}

	result, err := s.workflowSvc.Intake(c.Request.Context(), workflowdomain.IntakeRequest{
		ExternalID:    strings.TrimSpace(req.ExternalID),
		DisplayName:   strings.TrimSpace(req.DisplayName),
		InviteTokenID: strings.TrimSpace(req.InviteTokenID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if result.Applied && !result.Readmitted {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"member":     toMemberResponse(result.Member),
		"applied":    result.Applied,
		"readmitted": result.Readmitted,
	})
}

func (s *Server) Leave(c *gin.Context) {
	var req struct {
		ExternalID string `json:"external_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ExternalID) == "" {
		AbortWithError(c, newValidationError("external_id", "required", "external id is required"))
		return
	}

	member, err := s.workflowSvc.Leave(c.Request.Context(), strings.TrimSpace(req.ExternalID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": toMemberResponse(member)})
}

func (s *Server) RulesAccepted(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, applied, err := s.workflowSvc.RulesAccepted(c.Request.Context(), externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"member":  toMemberResponse(member),
		"applied": applied,
	})
}

func (s *Server) Verify(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	var req struct {
		IdentityNumber string `json:"identity_number"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.IdentityNumber) == "" {
		AbortWithError(c, newValidationError("identity_number", "required", "identity number is required"))
		return
	}

	member, err := s.workflowSvc.Verify(c.Request.Context(), externalID, strings.TrimSpace(req.IdentityNumber))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": toMemberResponse(member)})
}

func (s *Server) Promote(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	var req struct {
		ActorExternalID string `json:"actor_external_id"`
		Tier            string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tier, err := access.ParseTier(req.Tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	member, err := s.workflowSvc.Promote(c.Request.Context(), strings.TrimSpace(req.ActorExternalID), externalID, tier)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"member": toMemberResponse(member)})
}

func (s *Server) Permissions(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	set, member, err := s.workflowSvc.Permissions(c.Request.Context(), externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"member_id":       member.ID.String(),
		"tier":            set.Tier.String(),
		"can_post":        set.CanPost,
		"can_share_media": set.CanShareMedia,
		"can_poll":        set.CanPoll,
		"sections":        set.Sections,
	})
}

func (s *Server) ListMembers(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := memberdomain.Filter{}
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		filter.Statuses = []memberdomain.MemberStatus{memberdomain.MemberStatus(strings.ToUpper(status))}
	}

	members, err := s.memberRepo.List(c.Request.Context(), s.db, filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	limit := page.Limit()
	members, pageInfo := pagination.BuildPageInfo(members, limit, func(m memberdomain.Member) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: m.ID.String()})
		return cursor
	})

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	c.JSON(http.StatusOK, gin.H{
		"members":   out,
		"page_info": pageInfo,
	})
}

func (s *Server) MemberEvents(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.memberRepo.FindByExternalID(c.Request.Context(), s.db, externalID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if member == nil {
		AbortWithError(c, memberdomain.ErrMemberNotFound)
		return
	}

	events, err := s.eventSvc.ListByEntity(c.Request.Context(), member.ID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
