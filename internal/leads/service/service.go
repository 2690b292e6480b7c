// Package service implements the profile store: per-lead serialized event
// application, session merging, replay, and tier-change publication.
package service

import (
	"context"
	"time"

	"leadscore_backend/internal/events"
	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/internal/leads/repository"
	"leadscore_backend/platform/apperr"
	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"
	"leadscore_backend/platform/metrics"
)

// ApplyResult reports what a single ApplyEvent call did.
type ApplyResult struct {
	Profile     domain.LeadProfile
	Score       domain.ScoreResult
	Duplicate   bool
	Created     bool
	TierChanged bool
	FromTier    domain.Tier
	ToTier      domain.Tier
}

// ReplayResult is a recomputed profile next to the stored one.
type ReplayResult struct {
	Stored     domain.LeadProfile
	Recomputed domain.LeadProfile
	Drifted    bool
}

// Service is the profile store. All writes to a given lead are serialized
// through a per-key lock; scoring and classification themselves are pure.
type Service struct {
	repo        repository.Repository
	bus         events.Bus
	log         *logger.Logger
	metrics     *metrics.Metrics
	locks       *keyLock
	lockTimeout time.Duration
	now         func() time.Time
}

// NewService creates the profile store.
func NewService(repo repository.Repository, bus events.Bus, log *logger.Logger, m *metrics.Metrics, cfg config.ScoringConfig) *Service {
	return &Service{
		repo:        repo,
		bus:         bus,
		log:         log,
		metrics:     m,
		locks:       newKeyLock(),
		lockTimeout: cfg.GetLockTimeout(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ApplyEvent runs the full pipeline for one normalized event: resolve the
// canonical profile (merging an anonymous session when the event carries both
// identities), check idempotency, score, classify, persist atomically, then
// publish. Persisted state is never rolled back by downstream failures.
func (s *Service) ApplyEvent(ctx context.Context, ev domain.InteractionEvent) (ApplyResult, error) {
	if ev.Type == domain.EventGDPRDelete {
		if err := s.Delete(ctx, ev.IdentityKey); err != nil {
			return ApplyResult{}, err
		}
		return ApplyResult{Duplicate: false}, nil
	}

	if ev.SessionID != "" && ev.IdentityKey != "" && !domain.IsSessionKey(ev.IdentityKey) {
		if err := s.resolveSession(ctx, ev.SessionID, ev.IdentityKey); err != nil {
			return ApplyResult{}, err
		}
	}

	release, err := s.locks.Acquire(ctx, ev.IdentityKey, s.lockTimeout)
	if err != nil {
		s.metrics.LockTimeout()
		return ApplyResult{}, err
	}
	defer release()

	return s.applyLocked(ctx, ev)
}

// applyLocked assumes the caller holds the lock for ev.IdentityKey.
func (s *Service) applyLocked(ctx context.Context, ev domain.InteractionEvent) (ApplyResult, error) {
	profile, created, err := s.getOrCreate(ctx, ev)
	if err != nil {
		return ApplyResult{}, err
	}

	dup, err := s.repo.EventExists(ctx, profile.ID, ev.EventID)
	if err != nil {
		return ApplyResult{}, err
	}
	if dup {
		s.metrics.DuplicateEvent()
		return ApplyResult{Profile: profile, Duplicate: true}, nil
	}

	updated, scored := advance(profile, ev)
	fromTier := profile.Tier

	inserted, err := s.repo.ApplyEvent(ctx, updated, ev)
	if err != nil {
		return ApplyResult{}, err
	}
	if !inserted {
		// Lost a race on the unique constraint; treat as the duplicate it is.
		s.metrics.DuplicateEvent()
		return ApplyResult{Profile: profile, Duplicate: true}, nil
	}

	s.metrics.EventIngested(string(ev.Type))

	result := ApplyResult{
		Profile:  updated,
		Score:    scored,
		Created:  created,
		FromTier: fromTier,
		ToTier:   updated.Tier,
	}

	if created {
		s.bus.Publish(ctx, events.LeadCreated{
			BaseEvent:   events.NewBaseEvent(),
			LeadID:      updated.ID,
			IdentityKey: updated.IdentityKey,
			Source:      updated.Source,
		})
	}
	if updated.Tier != fromTier {
		result.TierChanged = true
		s.metrics.TierTransition(string(updated.Tier))
		s.log.WithContext(ctx).TierTransition(updated.IdentityKey, string(fromTier), string(updated.Tier), ev.EventID)
		s.bus.Publish(ctx, events.TierChanged{
			BaseEvent:         events.NewBaseEvent(),
			LeadID:            updated.ID,
			IdentityKey:       updated.IdentityKey,
			FromTier:          string(fromTier),
			ToTier:            string(updated.Tier),
			TriggeringEventID: ev.EventID,
			ChangedAt:         ev.Timestamp,
		})
	}

	return result, nil
}

// advance folds one event into a profile. It is pure: the same profile and
// event always produce the same next state, which is what makes replay
// reconstruct stored state exactly.
func advance(profile domain.LeadProfile, ev domain.InteractionEvent) (domain.LeadProfile, domain.ScoreResult) {
	next := profile
	var scored domain.ScoreResult
	next.Breakdown, scored = domain.Score(profile.Breakdown, ev)

	if ev.Type == domain.EventWebinarAttendance && ev.Attendance != nil && ev.Attendance.Attended {
		next.HasAttendedWebinar = true
	}

	if ev.Type == domain.EventAdminOverride && ev.Admin != nil {
		if ev.Admin.ClearSticky {
			next.Sticky = false
		}
		if ev.Admin.Tier != nil {
			// Explicit tier overrides bypass monotonicity and pin the tier.
			next.Tier = *ev.Admin.Tier
			next.Sticky = true
		} else if !next.Sticky {
			next.Tier = domain.Classify(next.Tier, false, next.Breakdown.Total, next.HasAttendedWebinar, ev.Type)
		}
	} else {
		next.Tier = domain.Classify(next.Tier, next.Sticky, next.Breakdown.Total, next.HasAttendedWebinar, ev.Type)
	}

	if ev.Timestamp.After(next.LastInteraction) {
		next.LastInteraction = ev.Timestamp
	}
	return next, scored
}

func (s *Service) getOrCreate(ctx context.Context, ev domain.InteractionEvent) (domain.LeadProfile, bool, error) {
	profile, err := s.repo.GetByKey(ctx, ev.IdentityKey)
	if err == nil {
		return profile, false, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return domain.LeadProfile{}, false, err
	}

	profile = domain.NewLeadProfile(ev.IdentityKey, s.now())
	if source, ok := ev.Metadata["source"].(string); ok {
		profile.Source = source
	}
	if name, ok := ev.Metadata["name"].(string); ok {
		profile.Name = name
	}
	if phone, ok := ev.Metadata["phone"].(string); ok {
		profile.Phone = phone
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			// Another writer created it between our lookup and insert.
			profile, err = s.repo.GetByKey(ctx, ev.IdentityKey)
			return profile, false, err
		}
		return domain.LeadProfile{}, false, err
	}
	return profile, true, nil
}

// resolveSession folds the anonymous session profile for sessionID into the
// profile for identityKey. When no identified profile exists yet the session
// profile is simply re-keyed, keeping its history intact.
func (s *Service) resolveSession(ctx context.Context, sessionID, identityKey string) error {
	sessionKey := domain.SessionKey(sessionID)

	releaseBoth, err := s.acquireOrdered(ctx, sessionKey, identityKey)
	if err != nil {
		return err
	}
	defer releaseBoth()

	session, err := s.repo.GetByKey(ctx, sessionKey)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil // nothing to merge
		}
		return err
	}

	target, err := s.repo.GetByKey(ctx, identityKey)
	if apperr.Is(err, apperr.KindNotFound) {
		if err := s.repo.Rename(ctx, session.ID, identityKey, identityKey); err != nil {
			return err
		}
		s.log.WithLeadKey(identityKey).Info("session_promoted", "session_key", sessionKey)
		return nil
	}
	if err != nil {
		return err
	}

	return s.mergeLocked(ctx, session, target)
}

// Merge folds the profile at fromKey into the one at toKey. Used by the
// admin merge endpoint; session auto-merge shares the same path.
func (s *Service) Merge(ctx context.Context, fromKey, toKey string) (domain.LeadProfile, error) {
	if fromKey == toKey {
		return domain.LeadProfile{}, apperr.Validation("cannot merge a profile into itself")
	}

	releaseBoth, err := s.acquireOrdered(ctx, fromKey, toKey)
	if err != nil {
		return domain.LeadProfile{}, err
	}
	defer releaseBoth()

	source, err := s.repo.GetByKey(ctx, fromKey)
	if err != nil {
		return domain.LeadProfile{}, err
	}
	target, err := s.repo.GetByKey(ctx, toKey)
	if err != nil {
		return domain.LeadProfile{}, err
	}

	if err := s.mergeLocked(ctx, source, target); err != nil {
		return domain.LeadProfile{}, err
	}
	return s.repo.GetByKey(ctx, toKey)
}

// mergeLocked assumes both keys are locked by the caller.
func (s *Service) mergeLocked(ctx context.Context, source, target domain.LeadProfile) error {
	fromTier := target.Tier
	merged := domain.MergeProfiles(target, source)

	if err := s.repo.Merge(ctx, source.ID, merged); err != nil {
		return err
	}

	s.metrics.MergePerformed()
	s.log.WithLeadKey(merged.IdentityKey).Info("profiles_merged",
		"from_key", source.IdentityKey,
		"merged_total", merged.Breakdown.Total,
	)
	s.bus.Publish(ctx, events.ProfileMerged{
		BaseEvent:   events.NewBaseEvent(),
		FromKey:     source.IdentityKey,
		ToKey:       merged.IdentityKey,
		MergedTotal: merged.Breakdown.Total,
	})

	if merged.Tier != fromTier {
		s.metrics.TierTransition(string(merged.Tier))
		s.bus.Publish(ctx, events.TierChanged{
			BaseEvent:         events.NewBaseEvent(),
			LeadID:            merged.ID,
			IdentityKey:       merged.IdentityKey,
			FromTier:          string(fromTier),
			ToTier:            string(merged.Tier),
			TriggeringEventID: "merge:" + source.IdentityKey,
			ChangedAt:         s.now(),
		})
	}
	return nil
}

// acquireOrdered takes both key locks in lexical order to avoid deadlock.
func (s *Service) acquireOrdered(ctx context.Context, a, b string) (func(), error) {
	first, second := a, b
	if second < first {
		first, second = second, first
	}

	releaseFirst, err := s.locks.Acquire(ctx, first, s.lockTimeout)
	if err != nil {
		s.metrics.LockTimeout()
		return nil, err
	}
	releaseSecond, err := s.locks.Acquire(ctx, second, s.lockTimeout)
	if err != nil {
		releaseFirst()
		s.metrics.LockTimeout()
		return nil, err
	}
	return func() {
		releaseSecond()
		releaseFirst()
	}, nil
}

// Get returns the profile for an identity key.
func (s *Service) Get(ctx context.Context, identityKey string) (domain.LeadProfile, error) {
	return s.repo.GetByKey(ctx, identityKey)
}

// ListInteractions pages through a lead's interaction log.
func (s *Service) ListInteractions(ctx context.Context, identityKey string, q repository.EventQuery) (repository.Page, error) {
	profile, err := s.repo.GetByKey(ctx, identityKey)
	if err != nil {
		return repository.Page{}, err
	}
	return s.repo.ListEvents(ctx, profile.ID, q)
}

// Replay folds the full interaction log through the scoring pipeline from a
// zero profile and reports whether the result matches stored state. It is
// read-only; it exists to audit that stored state is a pure fold of the log.
func (s *Service) Replay(ctx context.Context, identityKey string) (ReplayResult, error) {
	stored, err := s.repo.GetByKey(ctx, identityKey)
	if err != nil {
		return ReplayResult{}, err
	}

	log, err := s.repo.AllEvents(ctx, stored.ID)
	if err != nil {
		return ReplayResult{}, err
	}

	recomputed := domain.NewLeadProfile(stored.IdentityKey, stored.CreatedAt)
	recomputed.ID = stored.ID
	recomputed.Email = stored.Email
	recomputed.Name = stored.Name
	recomputed.Phone = stored.Phone
	recomputed.Source = stored.Source
	recomputed.LastInteraction = stored.CreatedAt
	for _, ev := range log {
		recomputed, _ = advance(recomputed, ev)
	}

	drifted := recomputed.Breakdown.Total != stored.Breakdown.Total ||
		recomputed.Tier != stored.Tier ||
		recomputed.Sticky != stored.Sticky

	return ReplayResult{Stored: stored, Recomputed: recomputed, Drifted: drifted}, nil
}

// Delete erases a profile and its interaction log.
func (s *Service) Delete(ctx context.Context, identityKey string) error {
	release, err := s.locks.Acquire(ctx, identityKey, s.lockTimeout)
	if err != nil {
		s.metrics.LockTimeout()
		return err
	}
	defer release()

	profile, err := s.repo.GetByKey(ctx, identityKey)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, profile.ID); err != nil {
		return err
	}
	s.log.WithLeadKey(identityKey).Info("profile_deleted", "lead_id", profile.ID.String())
	return nil
}
