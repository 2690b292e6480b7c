package domain

import "fmt"

// Tier is the discrete qualification stage of a lead.
type Tier string

const (
	TierVisitor         Tier = "visitor"
	TierColdLead        Tier = "cold_lead"
	TierCandidate       Tier = "candidate"
	TierHotLead         Tier = "hot_lead"
	TierPendingApproval Tier = "pending_approval"
	TierSoftMember      Tier = "soft_member"
)

// tierRanks totally orders tiers for automatic progression. Membership states
// outrank all score-driven states so a score bump can never displace them.
var tierRanks = map[Tier]int{
	TierVisitor:         0,
	TierColdLead:        1,
	TierCandidate:       2,
	TierHotLead:         3,
	TierPendingApproval: 4,
	TierSoftMember:      5,
}

// Rank returns the tier's position in the progression order.
func (t Tier) Rank() int {
	return tierRanks[t]
}

// Valid reports whether the tier is one of the defined stages.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// ParseTier validates a tier string from an external caller.
func ParseTier(raw string) (Tier, error) {
	t := Tier(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", raw)
	}
	return t, nil
}

// MaxTier returns the higher-ranked of two tiers.
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// TierFromScore maps a total to its tier floor. A completed webinar
// attendance forces the soft_member band once the total reaches 70, even
// where the plain score lookup would stop at hot_lead.
func TierFromScore(total int, attendedWebinar bool) Tier {
	switch {
	case total >= 70 && attendedWebinar:
		return TierSoftMember
	case total >= 71:
		return TierHotLead
	case total >= 31:
		return TierCandidate
	case total >= 10:
		return TierColdLead
	default:
		return TierVisitor
	}
}

// Classify is the tier classifier: newTier = max(current, tierFromScore).
// Automatic transitions never downgrade. While the sticky flag is set the
// current tier is kept untouched (score components still accumulate).
// Membership states are reachable only through their explicit events.
func Classify(current Tier, sticky bool, total int, attendedWebinar bool, eventType EventType) Tier {
	if sticky {
		return current
	}

	switch eventType {
	case EventMemberRegistration:
		return MaxTier(current, TierPendingApproval)
	case EventMemberApproved:
		return MaxTier(current, TierSoftMember)
	}

	return MaxTier(current, TierFromScore(total, attendedWebinar))
}
