// Package domain holds the pure lead-scoring model: profile state, the
// interaction event shape, the scoring engine, and the tier classifier.
// Nothing in this package performs I/O.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed set of recognized interaction categories. Unknown
// types are not rejected at the boundary; they flow through with zero scoring
// weight so new surfaces can start emitting before a weight is assigned.
type EventType string

const (
	EventPageVisit           EventType = "page_visit"
	EventToolCompletion      EventType = "tool_completion"
	EventWebinarRegistration EventType = "webinar_registration"
	EventWebinarAttendance   EventType = "webinar_attendance"
	EventCTAClick            EventType = "cta_click"
	EventOfficeVisitBooked   EventType = "office_visit_booked"
	EventMemberRegistration  EventType = "member_registration"
	EventMemberApproved      EventType = "member_approved"
	EventAdminOverride       EventType = "admin_override"
	EventGDPRDelete          EventType = "gdpr_delete"
)

// Known reports whether the event type is part of the recognized set.
func (t EventType) Known() bool {
	switch t {
	case EventPageVisit, EventToolCompletion, EventWebinarRegistration,
		EventWebinarAttendance, EventCTAClick, EventOfficeVisitBooked,
		EventMemberRegistration, EventMemberApproved, EventAdminOverride,
		EventGDPRDelete:
		return true
	}
	return false
}

// Score component names. Each recognized event category accumulates into
// exactly one component; total is the sum across components.
const (
	ComponentActivity            = "activityScore"
	ComponentToolCompletion      = "toolCompletionScore"
	ComponentWebinarRegistration = "webinarRegistrationScore"
	ComponentEngagement          = "engagementScore"
	ComponentBooking             = "bookingScore"
	ComponentAdjustment          = "adjustmentScore"
)

// SessionKeyPrefix marks identity keys that belong to anonymous sessions.
const SessionKeyPrefix = "session:"

// SessionKey builds the identity key for an anonymous session ID.
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}

// IsSessionKey reports whether the identity key names an anonymous session.
func IsSessionKey(identityKey string) bool {
	return strings.HasPrefix(identityKey, SessionKeyPrefix)
}

// WebinarAttendance is the type-specific payload of a webinar_attendance event.
type WebinarAttendance struct {
	WebinarID       string     `json:"webinarId,omitempty"`
	Attended        bool       `json:"attended"`
	JoinTime        *time.Time `json:"joinTime,omitempty"`
	LeaveTime       *time.Time `json:"leaveTime,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	ChatMessages    int        `json:"chatMessages"`
	QuestionsAsked  int        `json:"questionsAsked"`
	PollResponses   int        `json:"pollResponses"`
	ReactionsUsed   int        `json:"reactionsUsed"`
}

// AdminOverride is the type-specific payload of an admin_override event.
// It is the only operation allowed to reduce total or set tier directly.
type AdminOverride struct {
	Tier            *Tier  `json:"tier,omitempty"`
	ScoreAdjustment *int   `json:"scoreAdjustment,omitempty"`
	ClearSticky     bool   `json:"clearSticky,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// InteractionEvent is the canonical normalized event applied to a profile.
// EventID is the caller-supplied idempotency key, unique per lead.
type InteractionEvent struct {
	EventID     string             `json:"eventId"`
	IdentityKey string             `json:"identityKey"`
	SessionID   string             `json:"sessionId,omitempty"`
	Type        EventType          `json:"type"`
	Timestamp   time.Time          `json:"timestamp"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Attendance  *WebinarAttendance `json:"attendance,omitempty"`
	Admin       *AdminOverride     `json:"admin,omitempty"`
}

// ScoreBreakdown maps named components to their accumulated values.
// AttendanceMinutes is reporting-only and never summed into Total.
type ScoreBreakdown struct {
	Components        map[string]int `json:"components"`
	Total             int            `json:"total"`
	AttendanceMinutes int            `json:"attendanceMinutes,omitempty"`
}

// NewScoreBreakdown returns an empty breakdown.
func NewScoreBreakdown() ScoreBreakdown {
	return ScoreBreakdown{Components: map[string]int{}}
}

// Clone returns a deep copy, so the scoring engine can stay side-effect free.
func (b ScoreBreakdown) Clone() ScoreBreakdown {
	out := ScoreBreakdown{
		Components:        make(map[string]int, len(b.Components)),
		Total:             b.Total,
		AttendanceMinutes: b.AttendanceMinutes,
	}
	for k, v := range b.Components {
		out.Components[k] = v
	}
	return out
}

// Component returns the accumulated value of a named component.
func (b ScoreBreakdown) Component(name string) int {
	return b.Components[name]
}

func (b *ScoreBreakdown) recomputeTotal() {
	total := 0
	for _, v := range b.Components {
		total += v
	}
	b.Total = total
}

// LeadProfile is the canonical per-identity engagement record.
type LeadProfile struct {
	ID                 uuid.UUID      `json:"id"`
	IdentityKey        string         `json:"identityKey"`
	Email              string         `json:"email,omitempty"`
	Name               string         `json:"name,omitempty"`
	Phone              string         `json:"phone,omitempty"`
	Source             string         `json:"source,omitempty"`
	Tier               Tier           `json:"tier"`
	Sticky             bool           `json:"sticky"`
	Breakdown          ScoreBreakdown `json:"scoreBreakdown"`
	HasAttendedWebinar bool           `json:"hasAttendedWebinar"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	LastInteraction    time.Time      `json:"lastInteraction"`
}

// NewLeadProfile creates an empty visitor profile for an identity key.
func NewLeadProfile(identityKey string, now time.Time) LeadProfile {
	profile := LeadProfile{
		ID:              uuid.New(),
		IdentityKey:     identityKey,
		Tier:            TierVisitor,
		Breakdown:       NewScoreBreakdown(),
		CreatedAt:       now,
		LastInteraction: now,
	}
	if !IsSessionKey(identityKey) {
		profile.Email = identityKey
	}
	return profile
}
