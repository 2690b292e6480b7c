package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"leadscore_backend/internal/events"
	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/internal/leads/repository"
	"leadscore_backend/platform/apperr"
	"leadscore_backend/platform/logger"
	"leadscore_backend/platform/metrics"
)

type testConfig struct{}

func (testConfig) GetLockTimeout() time.Duration { return 2 * time.Second }
func (testConfig) GetDefaultPhoneRegion() string { return "US" }

func newTestService(t *testing.T) (*Service, *repository.MemoryRepo, *events.InMemoryBus) {
	t.Helper()
	log := logger.New("development")
	repo := repository.NewMemory()
	bus := events.NewInMemoryBus(log)
	svc := NewService(repo, bus, log, metrics.New(), testConfig{})
	return svc, repo, bus
}

func interaction(id, key string, eventType domain.EventType) domain.InteractionEvent {
	return domain.InteractionEvent{
		EventID:     id,
		IdentityKey: key,
		Type:        eventType,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestApplyEventCreatesAndScores(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.ApplyEvent(ctx, interaction("e1", "lead@example.com", domain.EventToolCompletion))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !result.Created {
		t.Fatal("expected profile creation")
	}
	if result.Profile.Breakdown.Total != 10 {
		t.Fatalf("total = %d, want 10", result.Profile.Breakdown.Total)
	}
	if result.Profile.Tier != domain.TierColdLead {
		t.Fatalf("tier = %s, want cold_lead", result.Profile.Tier)
	}
	if !result.TierChanged {
		t.Fatal("expected tier change visitor -> cold_lead")
	}
}

func TestApplyEventIdempotent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	ev := interaction("e1", "lead@example.com", domain.EventCTAClick)
	if _, err := svc.ApplyEvent(ctx, ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	result, err := svc.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !result.Duplicate {
		t.Fatal("expected duplicate short-circuit")
	}
	if result.Profile.Breakdown.Total != 3 {
		t.Fatalf("total = %d, want 3 (unchanged)", result.Profile.Breakdown.Total)
	}
}

func TestApplyEventConcurrentSameEventID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ev := interaction("e1", "lead@example.com", domain.EventOfficeVisitBooked)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyEvent(ctx, ev); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	profile, err := svc.Get(ctx, "lead@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if profile.Breakdown.Total != 50 {
		t.Fatalf("total = %d, want 50 (applied exactly once)", profile.Breakdown.Total)
	}
}

func TestApplyEventConcurrentDistinctEvents(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := interaction(fmt.Sprintf("e%d", i), "lead@example.com", domain.EventPageVisit)
			if _, err := svc.ApplyEvent(ctx, ev); err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	profile, err := svc.Get(ctx, "lead@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if profile.Breakdown.Total != n {
		t.Fatalf("total = %d, want %d (no lost updates)", profile.Breakdown.Total, n)
	}
}

func TestTierChangePublished(t *testing.T) {
	svc, _, bus := newTestService(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []events.TierChanged
	bus.Subscribe(events.TierChanged{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.(events.TierChanged))
		return nil
	}))

	if _, err := svc.ApplyEvent(ctx, interaction("e1", "lead@example.com", domain.EventOfficeVisitBooked)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("published %d tier changes, want 1", len(got))
	}
	if got[0].FromTier != "visitor" || got[0].ToTier != "candidate" {
		t.Fatalf("transition %s -> %s, want visitor -> candidate", got[0].FromTier, got[0].ToTier)
	}
	if got[0].TriggeringEventID != "e1" {
		t.Fatalf("triggering event = %q, want e1", got[0].TriggeringEventID)
	}
}

func TestSessionMergeOnIdentification(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Anonymous browsing under a session key.
	sessionEv := interaction("s1", domain.SessionKey("sess-42"), domain.EventToolCompletion)
	sessionEv.SessionID = "sess-42"
	if _, err := svc.ApplyEvent(ctx, sessionEv); err != nil {
		t.Fatalf("session apply: %v", err)
	}

	// Existing identified profile.
	if _, err := svc.ApplyEvent(ctx, interaction("e1", "lead@example.com", domain.EventWebinarRegistration)); err != nil {
		t.Fatalf("identified apply: %v", err)
	}

	// Event carrying both identities triggers the merge.
	both := interaction("e2", "lead@example.com", domain.EventCTAClick)
	both.SessionID = "sess-42"
	if _, err := svc.ApplyEvent(ctx, both); err != nil {
		t.Fatalf("merging apply: %v", err)
	}

	profile, err := svc.Get(ctx, "lead@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if profile.Breakdown.Total != 28 { // 10 + 15 + 3
		t.Fatalf("total = %d, want 28", profile.Breakdown.Total)
	}

	if _, err := svc.Get(ctx, domain.SessionKey("sess-42")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("session profile should be gone, got err=%v", err)
	}
}

func TestSessionPromotionWithoutExistingTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sessionEv := interaction("s1", domain.SessionKey("sess-9"), domain.EventPageVisit)
	sessionEv.SessionID = "sess-9"
	if _, err := svc.ApplyEvent(ctx, sessionEv); err != nil {
		t.Fatalf("session apply: %v", err)
	}

	both := interaction("e1", "new@example.com", domain.EventCTAClick)
	both.SessionID = "sess-9"
	if _, err := svc.ApplyEvent(ctx, both); err != nil {
		t.Fatalf("identifying apply: %v", err)
	}

	profile, err := svc.Get(ctx, "new@example.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if profile.Breakdown.Total != 4 { // 1 + 3, history re-keyed not copied
		t.Fatalf("total = %d, want 4", profile.Breakdown.Total)
	}

	page, err := svc.ListInteractions(ctx, "new@example.com", repository.EventQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("log has %d events, want 2", len(page.Events))
	}
}

func TestAdminOverridePinsTier(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tier := domain.TierHotLead
	ev := interaction("o1", "lead@example.com", domain.EventAdminOverride)
	ev.Admin = &domain.AdminOverride{Tier: &tier}

	result, err := svc.ApplyEvent(ctx, ev)
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if result.Profile.Tier != domain.TierHotLead || !result.Profile.Sticky {
		t.Fatalf("profile = tier %s sticky %v, want hot_lead sticky", result.Profile.Tier, result.Profile.Sticky)
	}

	// Further events accumulate score but do not move the tier.
	result, err = svc.ApplyEvent(ctx, interaction("e1", "lead@example.com", domain.EventOfficeVisitBooked))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Profile.Tier != domain.TierHotLead {
		t.Fatalf("tier = %s, want hot_lead (sticky)", result.Profile.Tier)
	}
	if result.Profile.Breakdown.Total != 50 {
		t.Fatalf("total = %d, want 50", result.Profile.Breakdown.Total)
	}

	// Clearing sticky re-enables automatic classification.
	clear := interaction("o2", "lead@example.com", domain.EventAdminOverride)
	clear.Admin = &domain.AdminOverride{ClearSticky: true}
	if _, err := svc.ApplyEvent(ctx, clear); err != nil {
		t.Fatalf("clear sticky: %v", err)
	}

	result, err = svc.ApplyEvent(ctx, interaction("e2", "lead@example.com", domain.EventOfficeVisitBooked))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Profile.Tier != domain.TierHotLead {
		t.Fatalf("tier = %s, want hot_lead from score 100", result.Profile.Tier)
	}
	if result.Profile.Sticky {
		t.Fatal("sticky should stay cleared")
	}
}

func TestReplayMatchesStoredState(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	evs := []domain.InteractionEvent{
		interaction("e1", "lead@example.com", domain.EventPageVisit),
		interaction("e2", "lead@example.com", domain.EventWebinarRegistration),
		interaction("e3", "lead@example.com", domain.EventToolCompletion),
	}
	att := interaction("e4", "lead@example.com", domain.EventWebinarAttendance)
	att.Attendance = &domain.WebinarAttendance{Attended: true, QuestionsAsked: 2}
	evs = append(evs, att)

	for _, ev := range evs {
		if _, err := svc.ApplyEvent(ctx, ev); err != nil {
			t.Fatalf("apply %s: %v", ev.EventID, err)
		}
	}

	result, err := svc.Replay(ctx, "lead@example.com")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Drifted {
		t.Fatalf("replay drifted: stored total %d tier %s, recomputed total %d tier %s",
			result.Stored.Breakdown.Total, result.Stored.Tier,
			result.Recomputed.Breakdown.Total, result.Recomputed.Tier)
	}
}

func TestMergeRejectsSelf(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Merge(context.Background(), "a@example.com", "a@example.com"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteErasesProfile(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.ApplyEvent(ctx, interaction("e1", "lead@example.com", domain.EventPageVisit)); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := svc.Delete(ctx, "lead@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, "lead@example.com"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}
