package domain

import "math"

// Base weights per recognized event category. Membership and admin events
// carry no automatic weight; admin adjustments are applied as signed deltas.
var baseWeights = map[EventType]int{
	EventPageVisit:           1,
	EventCTAClick:            3,
	EventToolCompletion:      10,
	EventWebinarRegistration: 15,
	EventOfficeVisitBooked:   50,
}

// Webinar attendance scoring parameters.
const (
	attendanceBaseWeight = 15
	engagementBonusCap   = 10
	chatMessageWeight    = 2
	questionWeight       = 5
	pollResponseWeight   = 3
	reactionWeight       = 1
)

// scoreComponents routes each weighted event category to its component.
var scoreComponents = map[EventType]string{
	EventPageVisit:           ComponentActivity,
	EventCTAClick:            ComponentActivity,
	EventToolCompletion:      ComponentToolCompletion,
	EventWebinarRegistration: ComponentWebinarRegistration,
	EventOfficeVisitBooked:   ComponentBooking,
}

// ScoreResult describes what a single event contributed.
type ScoreResult struct {
	Component       string `json:"component,omitempty"`
	Points          int    `json:"points"`
	EngagementBonus int    `json:"engagementBonus,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
}

// Score is the scoring engine: a pure function from (current breakdown,
// event) to (new breakdown, contribution). It never mutates its input and
// performs no I/O; idempotency on event IDs is the profile store's job.
func Score(current ScoreBreakdown, ev InteractionEvent) (ScoreBreakdown, ScoreResult) {
	next := current.Clone()
	if next.Components == nil {
		next.Components = map[string]int{}
	}

	switch ev.Type {
	case EventWebinarAttendance:
		return scoreAttendance(next, ev)
	case EventAdminOverride:
		return scoreAdminAdjustment(next, ev)
	}

	weight, weighted := baseWeights[ev.Type]
	if !weighted || weight == 0 {
		// Unknown or unweighted category: recorded for audit, contributes 0.
		return next, ScoreResult{}
	}

	component := scoreComponents[ev.Type]
	next.Components[component] += weight
	next.recomputeTotal()

	return next, ScoreResult{Component: component, Points: weight}
}

// scoreAttendance awards the flat attendance base plus the capped engagement
// bonus: chat*2 + questions*5 + polls*3 + reactions*1, capped at 10.
// Attendance duration is derived when absent and kept for reporting only.
func scoreAttendance(next ScoreBreakdown, ev InteractionEvent) (ScoreBreakdown, ScoreResult) {
	att := ev.Attendance
	if att == nil {
		return next, ScoreResult{}
	}

	duration := attendanceDuration(att)
	next.AttendanceMinutes += duration

	if !att.Attended {
		// Registered but never joined: audit only.
		return next, ScoreResult{DurationMinutes: duration}
	}

	bonus := att.ChatMessages*chatMessageWeight +
		att.QuestionsAsked*questionWeight +
		att.PollResponses*pollResponseWeight +
		att.ReactionsUsed*reactionWeight
	if bonus > engagementBonusCap {
		bonus = engagementBonusCap
	}
	if bonus < 0 {
		bonus = 0
	}

	points := attendanceBaseWeight + bonus
	next.Components[ComponentEngagement] += points
	next.recomputeTotal()

	return next, ScoreResult{
		Component:       ComponentEngagement,
		Points:          points,
		EngagementBonus: bonus,
		DurationMinutes: duration,
	}
}

// scoreAdminAdjustment applies a signed delta to the adjustment component.
// This is the one operation allowed to reduce total; the delta is clamped so
// total never drops below zero.
func scoreAdminAdjustment(next ScoreBreakdown, ev InteractionEvent) (ScoreBreakdown, ScoreResult) {
	if ev.Admin == nil || ev.Admin.ScoreAdjustment == nil {
		return next, ScoreResult{}
	}

	delta := *ev.Admin.ScoreAdjustment
	next.Components[ComponentAdjustment] += delta
	next.recomputeTotal()
	if next.Total < 0 {
		next.Components[ComponentAdjustment] -= next.Total
		delta -= next.Total
		next.recomputeTotal()
	}

	return next, ScoreResult{Component: ComponentAdjustment, Points: delta}
}

// attendanceDuration resolves the attendance duration in whole minutes:
// the supplied value wins, otherwise round((leave - join) minutes), floored
// at zero.
func attendanceDuration(att *WebinarAttendance) int {
	if att.DurationMinutes != nil {
		if *att.DurationMinutes < 0 {
			return 0
		}
		return *att.DurationMinutes
	}
	if att.JoinTime == nil || att.LeaveTime == nil {
		return 0
	}
	rounded := int(math.Round(att.LeaveTime.Sub(*att.JoinTime).Minutes()))
	if rounded < 0 {
		return 0
	}
	return rounded
}
