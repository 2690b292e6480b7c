// Package repository persists lead profiles and the append-only interaction
// log. Two implementations exist: PostgreSQL (production) and in-memory
// (tests and storage-agnostic deployments). Both guarantee that ApplyEvent
// persists the profile mutation and the log append as one atomic unit.
package repository

import (
	"context"
	"time"

	"leadscore_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// EventQuery selects a window of the interaction log.
type EventQuery struct {
	From   time.Time // zero = unbounded
	To     time.Time // zero = unbounded
	Cursor string    // opaque cursor from a previous page
	Limit  int
}

// LoggedEvent is an interaction event together with its log sequence.
type LoggedEvent struct {
	Seq int64
	domain.InteractionEvent
}

// Page is one page of the interaction log in arrival order.
type Page struct {
	Events     []LoggedEvent
	NextCursor string
}

// Repository owns canonical lead state.
type Repository interface {
	// GetByKey loads a profile by identity key; apperr.NotFound when absent.
	GetByKey(ctx context.Context, identityKey string) (domain.LeadProfile, error)

	// Create inserts a fresh profile.
	Create(ctx context.Context, profile domain.LeadProfile) error

	// EventExists reports whether the event ID was already applied to the lead.
	EventExists(ctx context.Context, leadID uuid.UUID, eventID string) (bool, error)

	// ApplyEvent persists the updated profile and appends the event to the
	// log atomically. Returns false (and no error) when the event ID was
	// already present, in which case nothing is mutated.
	ApplyEvent(ctx context.Context, profile domain.LeadProfile, ev domain.InteractionEvent) (bool, error)

	// ListEvents returns a page of the lead's log within the query window.
	ListEvents(ctx context.Context, leadID uuid.UUID, q EventQuery) (Page, error)

	// AllEvents returns the lead's full log in arrival order, for replay.
	AllEvents(ctx context.Context, leadID uuid.UUID) ([]domain.InteractionEvent, error)

	// Merge atomically moves the source lead's log rows onto the merged
	// profile (dropping rows whose event ID already exists there), saves the
	// merged profile, and deletes the source lead.
	Merge(ctx context.Context, sourceID uuid.UUID, merged domain.LeadProfile) error

	// Rename re-keys a profile (promoting an anonymous session to an identity).
	Rename(ctx context.Context, id uuid.UUID, newKey, email string) error

	// Delete removes a profile and its log (GDPR erasure).
	Delete(ctx context.Context, leadID uuid.UUID) error
}
