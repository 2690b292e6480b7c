// Package transport defines the request and response shapes of the leads API.
package transport

import (
	"time"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/internal/leads/repository"
)

// IngestResponse acknowledges one ingested interaction event.
type IngestResponse struct {
	Accepted    bool   `json:"accepted"`
	Duplicate   bool   `json:"duplicate"`
	IdentityKey string `json:"identityKey"`
	Tier        string `json:"tier"`
	Total       int    `json:"total"`
	TierChanged bool   `json:"tierChanged,omitempty"`
}

// WebinarAttendanceRequest reports a lead's participation in a webinar.
// Engagement counters feed the capped bonus; join/leave times are accepted
// when the platform does not report a duration directly.
type WebinarAttendanceRequest struct {
	EventID         string     `json:"eventId" binding:"required"`
	Email           string     `json:"email" binding:"required,email"`
	WebinarID       string     `json:"webinarId" binding:"required"`
	Attended        *bool      `json:"attended" binding:"required"`
	Timestamp       time.Time  `json:"timestamp" binding:"required"`
	JoinTime        *time.Time `json:"joinTime"`
	LeaveTime       *time.Time `json:"leaveTime"`
	DurationMinutes *int       `json:"durationMinutes" binding:"omitempty,gte=0"`
	ChatMessages    int        `json:"chatMessages" binding:"gte=0"`
	QuestionsAsked  int        `json:"questionsAsked" binding:"gte=0"`
	PollResponses   int        `json:"pollResponses" binding:"gte=0"`
	ReactionsUsed   int        `json:"reactionsUsed" binding:"gte=0"`
}

// WebinarAttendanceResponse reports what the attendance event contributed.
type WebinarAttendanceResponse struct {
	Accepted        bool   `json:"accepted"`
	Duplicate       bool   `json:"duplicate"`
	PointsAwarded   int    `json:"pointsAwarded"`
	EngagementBonus int    `json:"engagementBonus"`
	DurationMinutes int    `json:"durationMinutes"`
	Tier            string `json:"tier"`
	Total           int    `json:"total"`
}

// AdminOverrideRequest pins a tier, adjusts the score, or clears the sticky
// flag. At least one of the three must be present.
type AdminOverrideRequest struct {
	EventID         string `json:"eventId" binding:"required"`
	Tier            string `json:"tier" binding:"omitempty"`
	ScoreAdjustment *int   `json:"scoreAdjustment"`
	ClearSticky     bool   `json:"clearSticky"`
	Notes           string `json:"notes" binding:"max=2000"`
}

// MergeRequest folds the profile at FromKey into the one at ToKey.
type MergeRequest struct {
	FromKey string `json:"fromKey" binding:"required"`
	ToKey   string `json:"toKey" binding:"required"`
}

// ProfileResponse is the external view of a lead profile.
type ProfileResponse struct {
	ID                 string         `json:"id"`
	IdentityKey        string         `json:"identityKey"`
	Email              string         `json:"email,omitempty"`
	Name               string         `json:"name,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Source             string         `json:"source,omitempty"`
	Tier               string         `json:"tier"`
	Sticky             bool           `json:"sticky"`
	Components         map[string]int `json:"scoreBreakdown"`
	Total              int            `json:"totalScore"`
	AttendanceMinutes  int            `json:"attendanceMinutes"`
	HasAttendedWebinar bool           `json:"hasAttendedWebinar"`
	CreatedAt          time.Time      `json:"createdAt"`
	LastInteraction    time.Time      `json:"lastInteraction"`
}

// NewProfileResponse converts a domain profile to its API shape.
func NewProfileResponse(p domain.LeadProfile) ProfileResponse {
	return ProfileResponse{
		ID:                 p.ID.String(),
		IdentityKey:        p.IdentityKey,
		Email:              p.Email,
		Name:               p.Name,
		Phone:              p.Phone,
		Source:             p.Source,
		Tier:               string(p.Tier),
		Sticky:             p.Sticky,
		Components:         p.Breakdown.Components,
		Total:              p.Breakdown.Total,
		AttendanceMinutes:  p.Breakdown.AttendanceMinutes,
		HasAttendedWebinar: p.HasAttendedWebinar,
		CreatedAt:          p.CreatedAt,
		LastInteraction:    p.LastInteraction,
	}
}

// InteractionEntry is one log line in the interactions listing.
type InteractionEntry struct {
	EventID   string         `json:"eventId"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// InteractionsResponse is a page of a lead's interaction log.
type InteractionsResponse struct {
	Events     []InteractionEntry `json:"events"`
	NextCursor string             `json:"nextCursor,omitempty"`
}

// NewInteractionsResponse converts a repository page to its API shape.
func NewInteractionsResponse(page repository.Page) InteractionsResponse {
	out := InteractionsResponse{
		Events:     make([]InteractionEntry, 0, len(page.Events)),
		NextCursor: page.NextCursor,
	}
	for _, ev := range page.Events {
		out.Events = append(out.Events, InteractionEntry{
			EventID:   ev.EventID,
			Type:      string(ev.Type),
			Timestamp: ev.Timestamp,
			Metadata:  ev.Metadata,
		})
	}
	return out
}

// ReplayResponse compares stored state with a fresh fold of the log.
type ReplayResponse struct {
	Stored     ProfileResponse `json:"stored"`
	Recomputed ProfileResponse `json:"recomputed"`
	Drifted    bool            `json:"drifted"`
}
