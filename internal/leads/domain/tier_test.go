package domain

import "testing"

func TestTierFromScore(t *testing.T) {
	cases := []struct {
		total    int
		attended bool
		want     Tier
	}{
		{0, false, TierVisitor},
		{9, false, TierVisitor},
		{10, false, TierColdLead},
		{30, false, TierColdLead},
		{31, false, TierCandidate},
		{70, false, TierCandidate},
		{71, false, TierHotLead},
		{500, false, TierHotLead},
		{69, true, TierCandidate},
		{70, true, TierSoftMember},
		{120, true, TierSoftMember},
	}

	for _, tc := range cases {
		if got := TierFromScore(tc.total, tc.attended); got != tc.want {
			t.Fatalf("TierFromScore(%d, %v) = %s, want %s", tc.total, tc.attended, got, tc.want)
		}
	}
}

func TestClassifyNeverDowngrades(t *testing.T) {
	// A hot lead whose score would map lower stays hot.
	if got := Classify(TierHotLead, false, 12, false, EventPageVisit); got != TierHotLead {
		t.Fatalf("got %s, want hot_lead", got)
	}
	// A soft member stays a soft member regardless of score.
	if got := Classify(TierSoftMember, false, 0, false, EventPageVisit); got != TierSoftMember {
		t.Fatalf("got %s, want soft_member", got)
	}
}

func TestClassifyPromotes(t *testing.T) {
	if got := Classify(TierVisitor, false, 35, false, EventToolCompletion); got != TierCandidate {
		t.Fatalf("got %s, want candidate", got)
	}
	if got := Classify(TierColdLead, false, 75, false, EventOfficeVisitBooked); got != TierHotLead {
		t.Fatalf("got %s, want hot_lead", got)
	}
}

func TestClassifyStickyFreezesTier(t *testing.T) {
	if got := Classify(TierColdLead, true, 500, true, EventOfficeVisitBooked); got != TierColdLead {
		t.Fatalf("got %s, want cold_lead while sticky", got)
	}
	// Sticky blocks even membership transitions.
	if got := Classify(TierColdLead, true, 0, false, EventMemberApproved); got != TierColdLead {
		t.Fatalf("got %s, want cold_lead while sticky", got)
	}
}

func TestClassifyMembershipEvents(t *testing.T) {
	if got := Classify(TierCandidate, false, 40, false, EventMemberRegistration); got != TierPendingApproval {
		t.Fatalf("got %s, want pending_approval", got)
	}
	if got := Classify(TierPendingApproval, false, 40, false, EventMemberApproved); got != TierSoftMember {
		t.Fatalf("got %s, want soft_member", got)
	}
	// Membership events never downgrade either.
	if got := Classify(TierSoftMember, false, 40, false, EventMemberRegistration); got != TierSoftMember {
		t.Fatalf("got %s, want soft_member", got)
	}
}

func TestParseTier(t *testing.T) {
	if _, err := ParseTier("hot_lead"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
}

func TestMaxTier(t *testing.T) {
	if got := MaxTier(TierVisitor, TierHotLead); got != TierHotLead {
		t.Fatalf("got %s, want hot_lead", got)
	}
	if got := MaxTier(TierSoftMember, TierCandidate); got != TierSoftMember {
		t.Fatalf("got %s, want soft_member", got)
	}
}
