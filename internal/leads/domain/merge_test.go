package domain

import (
	"testing"
	"time"
)

func TestMergeProfilesSumsComponents(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	target := NewLeadProfile("lead@example.com", now)
	target.Breakdown.Components[ComponentActivity] = 4
	target.Breakdown.Components[ComponentWebinarRegistration] = 15
	target.Breakdown.Total = 19
	target.Tier = TierColdLead

	source := NewLeadProfile(SessionKey("abc"), now.Add(-time.Hour))
	source.Breakdown.Components[ComponentActivity] = 6
	source.Breakdown.Components[ComponentToolCompletion] = 10
	source.Breakdown.Total = 16
	source.Breakdown.AttendanceMinutes = 30

	merged := MergeProfiles(target, source)

	if got := merged.Breakdown.Component(ComponentActivity); got != 10 {
		t.Fatalf("activity = %d, want 10", got)
	}
	if merged.Breakdown.Total != 35 {
		t.Fatalf("total = %d, want 35", merged.Breakdown.Total)
	}
	if merged.Breakdown.AttendanceMinutes != 30 {
		t.Fatalf("attendance minutes = %d, want 30", merged.Breakdown.AttendanceMinutes)
	}
	// 35 maps to candidate; higher than cold_lead.
	if merged.Tier != TierCandidate {
		t.Fatalf("tier = %s, want candidate", merged.Tier)
	}
	if !merged.CreatedAt.Equal(source.CreatedAt) {
		t.Fatalf("createdAt = %v, want earliest %v", merged.CreatedAt, source.CreatedAt)
	}
}

func TestMergeProfilesKeepsHigherTier(t *testing.T) {
	now := time.Now().UTC()

	target := NewLeadProfile("lead@example.com", now)
	target.Tier = TierHotLead
	target.Breakdown.Components[ComponentActivity] = 2
	target.Breakdown.Total = 2

	source := NewLeadProfile(SessionKey("s"), now)
	source.Breakdown.Components[ComponentActivity] = 1
	source.Breakdown.Total = 1

	merged := MergeProfiles(target, source)
	if merged.Tier != TierHotLead {
		t.Fatalf("tier = %s, want hot_lead preserved", merged.Tier)
	}
}

func TestMergeProfilesStickyPreservesTier(t *testing.T) {
	now := time.Now().UTC()

	target := NewLeadProfile("lead@example.com", now)
	target.Tier = TierColdLead
	target.Sticky = true

	source := NewLeadProfile(SessionKey("s"), now)
	source.Breakdown.Components[ComponentBooking] = 100
	source.Breakdown.Total = 100

	merged := MergeProfiles(target, source)
	if merged.Tier != TierColdLead {
		t.Fatalf("tier = %s, want cold_lead under sticky", merged.Tier)
	}
	if !merged.Sticky {
		t.Fatal("sticky flag lost in merge")
	}
	if merged.Breakdown.Total != 100 {
		t.Fatalf("total = %d, want 100 (score still accumulates)", merged.Breakdown.Total)
	}
}

func TestMergeProfilesBackfillsContact(t *testing.T) {
	now := time.Now().UTC()

	target := NewLeadProfile("lead@example.com", now)
	source := NewLeadProfile(SessionKey("s"), now)
	source.Name = "Ada"
	source.Phone = "+14155550101"
	source.Metadata = map[string]any{"source": "webinar"}

	merged := MergeProfiles(target, source)
	if merged.Name != "Ada" || merged.Phone != "+14155550101" {
		t.Fatalf("contact not backfilled: %+v", merged)
	}
	if merged.Metadata["source"] != "webinar" {
		t.Fatalf("metadata not backfilled: %+v", merged.Metadata)
	}
}

func TestMergeProfilesAttendanceFlagORed(t *testing.T) {
	now := time.Now().UTC()

	target := NewLeadProfile("lead@example.com", now)
	target.Breakdown.Components[ComponentEngagement] = 70
	target.Breakdown.Total = 70

	source := NewLeadProfile(SessionKey("s"), now)
	source.HasAttendedWebinar = true

	merged := MergeProfiles(target, source)
	if !merged.HasAttendedWebinar {
		t.Fatal("attendance flag lost in merge")
	}
	// 70 + attended now qualifies for soft_member.
	if merged.Tier != TierSoftMember {
		t.Fatalf("tier = %s, want soft_member", merged.Tier)
	}
}
