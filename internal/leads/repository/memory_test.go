package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/platform/apperr"
)

func seedLead(t *testing.T, repo *MemoryRepo, key string) domain.LeadProfile {
	t.Helper()
	profile := domain.NewLeadProfile(key, time.Now().UTC())
	if err := repo.Create(context.Background(), profile); err != nil {
		t.Fatalf("create: %v", err)
	}
	return profile
}

func logEvent(t *testing.T, repo *MemoryRepo, profile domain.LeadProfile, eventID string, at time.Time) {
	t.Helper()
	inserted, err := repo.ApplyEvent(context.Background(), profile, domain.InteractionEvent{
		EventID:     eventID,
		IdentityKey: profile.IdentityKey,
		Type:        domain.EventPageVisit,
		Timestamp:   at,
	})
	if err != nil {
		t.Fatalf("apply %s: %v", eventID, err)
	}
	if !inserted {
		t.Fatalf("apply %s: unexpected duplicate", eventID)
	}
}

func TestMemoryApplyEventDuplicate(t *testing.T) {
	repo := NewMemory()
	profile := seedLead(t, repo, "lead@example.com")
	ctx := context.Background()

	ev := domain.InteractionEvent{EventID: "e1", Type: domain.EventPageVisit, Timestamp: time.Now().UTC()}
	if inserted, err := repo.ApplyEvent(ctx, profile, ev); err != nil || !inserted {
		t.Fatalf("first apply: inserted=%v err=%v", inserted, err)
	}
	if inserted, err := repo.ApplyEvent(ctx, profile, ev); err != nil || inserted {
		t.Fatalf("second apply: inserted=%v err=%v, want duplicate skip", inserted, err)
	}

	exists, err := repo.EventExists(ctx, profile.ID, "e1")
	if err != nil || !exists {
		t.Fatalf("event exists: %v %v", exists, err)
	}
}

func TestMemoryListEventsPagination(t *testing.T) {
	repo := NewMemory()
	profile := seedLead(t, repo, "lead@example.com")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		logEvent(t, repo, profile, fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	ctx := context.Background()
	page, err := repo.ListEvents(ctx, profile.ID, EventQuery{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Events) != 2 || page.NextCursor == "" {
		t.Fatalf("page 1: %d events, cursor %q", len(page.Events), page.NextCursor)
	}
	if page.Events[0].EventID != "e0" || page.Events[1].EventID != "e1" {
		t.Fatalf("page 1 out of order: %s %s", page.Events[0].EventID, page.Events[1].EventID)
	}

	page2, err := repo.ListEvents(ctx, profile.ID, EventQuery{Limit: 2, Cursor: page.NextCursor})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2.Events) != 2 || page2.Events[0].EventID != "e2" {
		t.Fatalf("page 2: %d events, first %s", len(page2.Events), page2.Events[0].EventID)
	}

	page3, err := repo.ListEvents(ctx, profile.ID, EventQuery{Limit: 2, Cursor: page2.NextCursor})
	if err != nil {
		t.Fatalf("list page 3: %v", err)
	}
	if len(page3.Events) != 1 || page3.NextCursor != "" {
		t.Fatalf("page 3: %d events, cursor %q", len(page3.Events), page3.NextCursor)
	}
}

func TestMemoryListEventsTimeWindow(t *testing.T) {
	repo := NewMemory()
	profile := seedLead(t, repo, "lead@example.com")
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		logEvent(t, repo, profile, fmt.Sprintf("e%d", i), base.Add(time.Duration(i)*time.Hour))
	}

	page, err := repo.ListEvents(context.Background(), profile.ID, EventQuery{
		From: base.Add(time.Hour),
		To:   base.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("windowed list: %d events, want 2", len(page.Events))
	}
}

func TestMemoryMergeDropsDuplicateEventIDs(t *testing.T) {
	repo := NewMemory()
	target := seedLead(t, repo, "lead@example.com")
	source := seedLead(t, repo, domain.SessionKey("s"))
	now := time.Now().UTC()

	logEvent(t, repo, target, "shared", now)
	logEvent(t, repo, source, "shared", now)
	logEvent(t, repo, source, "only-source", now)

	if err := repo.Merge(context.Background(), source.ID, target); err != nil {
		t.Fatalf("merge: %v", err)
	}

	events, err := repo.AllEvents(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("merged log has %d events, want 2 (shared deduped)", len(events))
	}

	if _, err := repo.GetByKey(context.Background(), domain.SessionKey("s")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("source profile should be gone, got %v", err)
	}
}

func TestMemoryRename(t *testing.T) {
	repo := NewMemory()
	profile := seedLead(t, repo, domain.SessionKey("s"))
	ctx := context.Background()

	if err := repo.Rename(ctx, profile.ID, "lead@example.com", "lead@example.com"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	got, err := repo.GetByKey(ctx, "lead@example.com")
	if err != nil {
		t.Fatalf("get renamed: %v", err)
	}
	if got.ID != profile.ID || got.Email != "lead@example.com" {
		t.Fatalf("renamed profile = %+v", got)
	}
	if _, err := repo.GetByKey(ctx, domain.SessionKey("s")); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("old key should be gone, got %v", err)
	}
}
