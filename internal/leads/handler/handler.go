// Package handler exposes the leads HTTP endpoints.
package handler

import (
	"net/http"
	"strconv"
	"time"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/internal/leads/ingest"
	"leadscore_backend/internal/leads/repository"
	"leadscore_backend/internal/leads/service"
	"leadscore_backend/internal/leads/transport"
	"leadscore_backend/platform/apperr"
	"leadscore_backend/platform/httpkit"
	"leadscore_backend/platform/logger"
	"leadscore_backend/platform/sanitize"

	"github.com/gin-gonic/gin"
)

// Handler serves the leads API.
type Handler struct {
	svc        *service.Service
	normalizer *ingest.Normalizer
	log        *logger.Logger
}

// New creates a leads handler.
func New(svc *service.Service, normalizer *ingest.Normalizer, log *logger.Logger) *Handler {
	return &Handler{svc: svc, normalizer: normalizer, log: log}
}

// Ingest accepts one raw interaction event from any tracking surface.
// POST /api/v1/interactions
func (h *Handler) Ingest(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindBadRequest, "invalid JSON body", err))
		return
	}

	ev, err := h.normalizer.Normalize(raw)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	result, err := h.svc.ApplyEvent(c.Request.Context(), ev)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.IngestResponse{
		Accepted:    true,
		Duplicate:   result.Duplicate,
		IdentityKey: result.Profile.IdentityKey,
		Tier:        string(result.Profile.Tier),
		Total:       result.Profile.Breakdown.Total,
		TierChanged: result.TierChanged,
	})
}

// IngestWebinar accepts a structured webinar attendance report.
// POST /api/v1/interactions/webinar
func (h *Handler) IngestWebinar(c *gin.Context) {
	var req transport.WebinarAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid webinar attendance payload", err))
		return
	}

	ev := domain.InteractionEvent{
		EventID:     req.EventID,
		IdentityKey: req.Email,
		Type:        domain.EventWebinarAttendance,
		Timestamp:   req.Timestamp.UTC(),
		Attendance: &domain.WebinarAttendance{
			WebinarID:       req.WebinarID,
			Attended:        *req.Attended,
			JoinTime:        req.JoinTime,
			LeaveTime:       req.LeaveTime,
			DurationMinutes: req.DurationMinutes,
			ChatMessages:    req.ChatMessages,
			QuestionsAsked:  req.QuestionsAsked,
			PollResponses:   req.PollResponses,
			ReactionsUsed:   req.ReactionsUsed,
		},
	}

	result, err := h.svc.ApplyEvent(c.Request.Context(), ev)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, transport.WebinarAttendanceResponse{
		Accepted:        true,
		Duplicate:       result.Duplicate,
		PointsAwarded:   result.Score.Points,
		EngagementBonus: result.Score.EngagementBonus,
		DurationMinutes: result.Score.DurationMinutes,
		Tier:            string(result.Profile.Tier),
		Total:           result.Profile.Breakdown.Total,
	})
}

// GetProfile returns the current profile for an identity key.
// GET /api/v1/profiles/:identityKey
func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.svc.Get(c.Request.Context(), c.Param("identityKey"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewProfileResponse(profile))
}

// ListInteractions pages through a lead's interaction log.
// GET /api/v1/profiles/:identityKey/interactions?from=&to=&cursor=&limit=
func (h *Handler) ListInteractions(c *gin.Context) {
	q := repository.EventQuery{Cursor: c.Query("cursor")}

	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.HandleError(c, apperr.Validation("from must be RFC 3339"))
			return
		}
		q.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpkit.HandleError(c, apperr.Validation("to must be RFC 3339"))
			return
		}
		q.To = t
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpkit.HandleError(c, apperr.Validation("limit must be a positive integer"))
			return
		}
		q.Limit = n
	}

	page, err := h.svc.ListInteractions(c.Request.Context(), c.Param("identityKey"), q)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewInteractionsResponse(page))
}

// Override applies an admin override: pin a tier, adjust the score, or clear
// the sticky flag. Goes through the same event pipeline as every other
// interaction so it lands in the log and replays.
// PATCH /api/v1/admin/profiles/:identityKey
func (h *Handler) Override(c *gin.Context) {
	var req transport.AdminOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid override payload", err))
		return
	}

	override := &domain.AdminOverride{
		ScoreAdjustment: req.ScoreAdjustment,
		ClearSticky:     req.ClearSticky,
		Notes:           sanitize.Text(req.Notes),
	}
	if req.Tier != "" {
		tier, err := domain.ParseTier(req.Tier)
		if err != nil {
			httpkit.HandleError(c, apperr.Validation(err.Error()))
			return
		}
		override.Tier = &tier
	}
	if override.Tier == nil && override.ScoreAdjustment == nil && !override.ClearSticky {
		httpkit.HandleError(c, apperr.Validation("override must set a tier, a score adjustment, or clear the sticky flag"))
		return
	}

	result, err := h.svc.ApplyEvent(c.Request.Context(), domain.InteractionEvent{
		EventID:     req.EventID,
		IdentityKey: c.Param("identityKey"),
		Type:        domain.EventAdminOverride,
		Timestamp:   time.Now().UTC(),
		Admin:       override,
	})
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewProfileResponse(result.Profile))
}

// Merge folds one profile into another.
// POST /api/v1/admin/profiles/merge
func (h *Handler) Merge(c *gin.Context) {
	var req transport.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.HandleError(c, apperr.Wrap(apperr.KindValidation, "invalid merge payload", err))
		return
	}

	merged, err := h.svc.Merge(c.Request.Context(), req.FromKey, req.ToKey)
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.NewProfileResponse(merged))
}

// Replay recomputes a profile from its log and reports drift.
// GET /api/v1/admin/profiles/:identityKey/replay
func (h *Handler) Replay(c *gin.Context) {
	result, err := h.svc.Replay(c.Request.Context(), c.Param("identityKey"))
	if err != nil {
		httpkit.HandleError(c, err)
		return
	}
	httpkit.OK(c, transport.ReplayResponse{
		Stored:     transport.NewProfileResponse(result.Stored),
		Recomputed: transport.NewProfileResponse(result.Recomputed),
		Drifted:    result.Drifted,
	})
}

// Delete erases a profile and its interaction log.
// DELETE /api/v1/admin/profiles/:identityKey
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("identityKey")); err != nil {
		httpkit.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
