// Package server exposes the operator and webhook HTTP surface: member
// intake and lifecycle webhooks, invite management, permission lookups and
// the health/metrics endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/velvetlounge/gatekeeper/internal/config"
	eventdomain "github.com/velvetlounge/gatekeeper/internal/event/domain"
	invitedomain "github.com/velvetlounge/gatekeeper/internal/invite/domain"
	memberdomain "github.com/velvetlounge/gatekeeper/internal/member/domain"
	obslogger "github.com/velvetlounge/gatekeeper/internal/observability/logger"
	obsmetrics "github.com/velvetlounge/gatekeeper/internal/observability/metrics"
	workflowdomain "github.com/velvetlounge/gatekeeper/internal/workflow/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	workflowSvc workflowdomain.Service
	inviteSvc   invitedomain.Service
	eventSvc    eventdomain.Service
	memberRepo  memberdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	WorkflowSvc workflowdomain.Service
	InviteSvc   invitedomain.Service
	EventSvc    eventdomain.Service
	MemberRepo  memberdomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		workflowSvc: p.WorkflowSvc,
		inviteSvc:   p.InviteSvc,
		eventSvc:    p.EventSvc,
		memberRepo:  p.MemberRepo,
	}

	svc.registerWebhookRoutes()
	svc.registerMemberRoutes()
	svc.registerInviteRoutes()

	return svc
}

func (s *Server) registerWebhookRoutes() {
	webhooks := s.engine.Group("/webhooks")
	webhooks.POST("/intake", s.Intake)
	webhooks.POST("/leave", s.Leave)
}

func (s *Server) registerMemberRoutes() {
	members := s.engine.Group("/members")
	members.GET("", s.ListMembers)
	members.POST("/:external_id/rules-accepted", s.RulesAccepted)
	members.POST("/:external_id/verify", s.Verify)
	members.POST("/:external_id/promote", s.Promote)
	members.GET("/:external_id/permissions", s.Permissions)
	members.GET("/:external_id/events", s.MemberEvents)
}

func (s *Server) registerInviteRoutes() {
	invites := s.engine.Group("/invites")
	invites.POST("", s.IssueInvite)
	invites.GET("/:id/validity", s.InviteValidity)
	invites.POST("/:id/revoke", s.RevokeInvite)
}
