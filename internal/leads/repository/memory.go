package repository

import (
	"context"
	"strconv"
	"sync"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/platform/apperr"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository. It backs tests and deployments
// without a database; all mutations are guarded by one mutex so the atomicity
// contract of ApplyEvent and Merge holds trivially.
type MemoryRepo struct {
	mu       sync.RWMutex
	byKey    map[string]uuid.UUID
	profiles map[uuid.UUID]domain.LeadProfile
	logs     map[uuid.UUID][]LoggedEvent
	eventIDs map[uuid.UUID]map[string]struct{}
	seq      int64
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{
		byKey:    map[string]uuid.UUID{},
		profiles: map[uuid.UUID]domain.LeadProfile{},
		logs:     map[uuid.UUID][]LoggedEvent{},
		eventIDs: map[uuid.UUID]map[string]struct{}{},
	}
}

var _ Repository = (*MemoryRepo)(nil)

func (r *MemoryRepo) GetByKey(_ context.Context, identityKey string) (domain.LeadProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[identityKey]
	if !ok {
		return domain.LeadProfile{}, apperr.NotFound(leadNotFoundMessage)
	}
	return cloneProfile(r.profiles[id]), nil
}

func (r *MemoryRepo) Create(_ context.Context, profile domain.LeadProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[profile.IdentityKey]; exists {
		return apperr.Conflict("lead already exists")
	}
	r.byKey[profile.IdentityKey] = profile.ID
	r.profiles[profile.ID] = cloneProfile(profile)
	r.eventIDs[profile.ID] = map[string]struct{}{}
	return nil
}

func (r *MemoryRepo) EventExists(_ context.Context, leadID uuid.UUID, eventID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.eventIDs[leadID][eventID]
	return ok, nil
}

func (r *MemoryRepo) ApplyEvent(_ context.Context, profile domain.LeadProfile, ev domain.InteractionEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[profile.ID]; !exists {
		return false, apperr.NotFound(leadNotFoundMessage)
	}
	ids := r.eventIDs[profile.ID]
	if ids == nil {
		ids = map[string]struct{}{}
		r.eventIDs[profile.ID] = ids
	}
	if _, dup := ids[ev.EventID]; dup {
		return false, nil
	}

	r.seq++
	ids[ev.EventID] = struct{}{}
	r.logs[profile.ID] = append(r.logs[profile.ID], LoggedEvent{Seq: r.seq, InteractionEvent: ev})
	r.profiles[profile.ID] = cloneProfile(profile)
	return true, nil
}

func (r *MemoryRepo) ListEvents(_ context.Context, leadID uuid.UUID, q EventQuery) (Page, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var after int64
	if q.Cursor != "" {
		after, _ = strconv.ParseInt(q.Cursor, 10, 64)
	}

	var page Page
	for _, entry := range r.logs[leadID] {
		if entry.Seq <= after {
			continue
		}
		if !q.From.IsZero() && entry.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && entry.Timestamp.After(q.To) {
			continue
		}
		if len(page.Events) == limit {
			page.NextCursor = strconv.FormatInt(page.Events[limit-1].Seq, 10)
			break
		}
		page.Events = append(page.Events, entry)
	}
	return page, nil
}

func (r *MemoryRepo) AllEvents(_ context.Context, leadID uuid.UUID) ([]domain.InteractionEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.logs[leadID]
	events := make([]domain.InteractionEvent, len(entries))
	for i, entry := range entries {
		events[i] = entry.InteractionEvent
	}
	return events, nil
}

func (r *MemoryRepo) Merge(_ context.Context, sourceID uuid.UUID, merged domain.LeadProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	source, ok := r.profiles[sourceID]
	if !ok {
		return apperr.NotFound(leadNotFoundMessage)
	}
	targetIDs := r.eventIDs[merged.ID]
	if targetIDs == nil {
		targetIDs = map[string]struct{}{}
		r.eventIDs[merged.ID] = targetIDs
	}

	for _, entry := range r.logs[sourceID] {
		if _, dup := targetIDs[entry.EventID]; dup {
			continue
		}
		targetIDs[entry.EventID] = struct{}{}
		r.logs[merged.ID] = append(r.logs[merged.ID], entry)
	}

	delete(r.byKey, source.IdentityKey)
	delete(r.profiles, sourceID)
	delete(r.logs, sourceID)
	delete(r.eventIDs, sourceID)

	r.profiles[merged.ID] = cloneProfile(merged)
	r.byKey[merged.IdentityKey] = merged.ID
	return nil
}

func (r *MemoryRepo) Rename(_ context.Context, id uuid.UUID, newKey, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[id]
	if !ok {
		return apperr.NotFound(leadNotFoundMessage)
	}
	if existing, taken := r.byKey[newKey]; taken && existing != id {
		return apperr.Conflict("identity key already in use")
	}

	delete(r.byKey, profile.IdentityKey)
	profile.IdentityKey = newKey
	profile.Email = email
	r.byKey[newKey] = id
	r.profiles[id] = profile
	return nil
}

func (r *MemoryRepo) Delete(_ context.Context, leadID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	profile, ok := r.profiles[leadID]
	if !ok {
		return apperr.NotFound(leadNotFoundMessage)
	}
	delete(r.byKey, profile.IdentityKey)
	delete(r.profiles, leadID)
	delete(r.logs, leadID)
	delete(r.eventIDs, leadID)
	return nil
}

// Ping always succeeds; present so the memory repo can serve health checks.
func (r *MemoryRepo) Ping(context.Context) error { return nil }

func cloneProfile(p domain.LeadProfile) domain.LeadProfile {
	out := p
	out.Breakdown = p.Breakdown.Clone()
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
