// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadscore_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Lead Scoring Domain Events
// =============================================================================

// LeadCreated is published when a profile is created for a new identity key.
type LeadCreated struct {
	BaseEvent
	LeadID      uuid.UUID `json:"leadId"`
	IdentityKey string    `json:"identityKey"`
	Source      string    `json:"source,omitempty"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// TierChanged is published on every accepted tier transition. It is the
// payload delivered (at least once) to the notification dispatcher; consumers
// must be idempotent on TriggeringEventID.
type TierChanged struct {
	BaseEvent
	LeadID            uuid.UUID `json:"leadId"`
	IdentityKey       string    `json:"identityKey"`
	FromTier          string    `json:"fromTier"`
	ToTier            string    `json:"toTier"`
	TriggeringEventID string    `json:"triggeringEventId"`
	ChangedAt         time.Time `json:"changedAt"`
}

func (e TierChanged) EventName() string { return "leads.tier.changed" }

// ProfileMerged is published when an anonymous session profile is folded into
// an identified profile.
type ProfileMerged struct {
	BaseEvent
	FromKey     string `json:"fromKey"`
	ToKey       string `json:"toKey"`
	MergedTotal int    `json:"mergedTotal"`
}

func (e ProfileMerged) EventName() string { return "leads.profile.merged" }
