// Package leads wires the lead-scoring pipeline: normalization, the profile
// store, and the HTTP surface.
package leads

import (
	"leadscore_backend/internal/events"
	apphttp "leadscore_backend/internal/http"
	"leadscore_backend/internal/leads/handler"
	"leadscore_backend/internal/leads/ingest"
	"leadscore_backend/internal/leads/repository"
	"leadscore_backend/internal/leads/service"
	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"
	"leadscore_backend/platform/metrics"
	"leadscore_backend/platform/validator"
)

// Module bundles the leads components for registration with the HTTP server.
type Module struct {
	Service *service.Service
	handler *handler.Handler
}

// NewModule wires the leads module.
func NewModule(repo repository.Repository, bus events.Bus, log *logger.Logger, m *metrics.Metrics, val *validator.Validator, cfg config.ScoringConfig) *Module {
	svc := service.NewService(repo, bus, log, m, cfg)
	normalizer := ingest.New(val, cfg.GetDefaultPhoneRegion())
	return &Module{
		Service: svc,
		handler: handler.New(svc, normalizer, log),
	}
}

// Name implements http.Module.
func (m *Module) Name() string { return "leads" }

// RegisterRoutes mounts the leads routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	interactions := ctx.V1.Group("/interactions")
	interactions.Use(ctx.IngestRateLimit)
	{
		interactions.POST("", m.handler.Ingest)
		interactions.POST("/webinar", m.handler.IngestWebinar)
	}

	profiles := ctx.V1.Group("/profiles")
	{
		profiles.GET("/:identityKey", m.handler.GetProfile)
		profiles.GET("/:identityKey/interactions", m.handler.ListInteractions)
	}

	admin := ctx.Admin.Group("/profiles")
	{
		admin.PATCH("/:identityKey", m.handler.Override)
		admin.POST("/merge", m.handler.Merge)
		admin.GET("/:identityKey/replay", m.handler.Replay)
		admin.DELETE("/:identityKey", m.handler.Delete)
	}
}
