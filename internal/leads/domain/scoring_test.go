package domain

import (
	"testing"
	"time"
)

func event(t EventType) InteractionEvent {
	return InteractionEvent{
		EventID:     "evt-1",
		IdentityKey: "lead@example.com",
		Type:        t,
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestScoreBaseWeights(t *testing.T) {
	cases := []struct {
		eventType EventType
		component string
		points    int
	}{
		{EventPageVisit, ComponentActivity, 1},
		{EventCTAClick, ComponentActivity, 3},
		{EventToolCompletion, ComponentToolCompletion, 10},
		{EventWebinarRegistration, ComponentWebinarRegistration, 15},
		{EventOfficeVisitBooked, ComponentBooking, 50},
	}

	for _, tc := range cases {
		next, result := Score(NewScoreBreakdown(), event(tc.eventType))
		if result.Points != tc.points {
			t.Fatalf("%s: points = %d, want %d", tc.eventType, result.Points, tc.points)
		}
		if result.Component != tc.component {
			t.Fatalf("%s: component = %q, want %q", tc.eventType, result.Component, tc.component)
		}
		if next.Total != tc.points {
			t.Fatalf("%s: total = %d, want %d", tc.eventType, next.Total, tc.points)
		}
	}
}

func TestScoreAccumulates(t *testing.T) {
	breakdown := NewScoreBreakdown()
	breakdown, _ = Score(breakdown, event(EventPageVisit))
	breakdown, _ = Score(breakdown, event(EventPageVisit))
	breakdown, _ = Score(breakdown, event(EventCTAClick))
	breakdown, _ = Score(breakdown, event(EventToolCompletion))

	if got := breakdown.Component(ComponentActivity); got != 5 {
		t.Fatalf("activity = %d, want 5", got)
	}
	if breakdown.Total != 15 {
		t.Fatalf("total = %d, want 15", breakdown.Total)
	}
}

func TestScoreUnknownTypeContributesZero(t *testing.T) {
	next, result := Score(NewScoreBreakdown(), event(EventType("newsletter_open")))
	if result.Points != 0 {
		t.Fatalf("points = %d, want 0", result.Points)
	}
	if next.Total != 0 {
		t.Fatalf("total = %d, want 0", next.Total)
	}
}

func TestScoreDoesNotMutateInput(t *testing.T) {
	current := NewScoreBreakdown()
	current.Components[ComponentActivity] = 7
	current.Total = 7

	Score(current, event(EventCTAClick))

	if current.Components[ComponentActivity] != 7 || current.Total != 7 {
		t.Fatalf("input mutated: %+v", current)
	}
}

func TestScoreAttendanceWithEngagement(t *testing.T) {
	ev := event(EventWebinarAttendance)
	minutes := 45
	ev.Attendance = &WebinarAttendance{
		Attended:        true,
		DurationMinutes: &minutes,
		ChatMessages:    3,
		QuestionsAsked:  1,
	}

	next, result := Score(NewScoreBreakdown(), ev)

	// chat 3*2 + questions 1*5 = 11, capped at 10; base 15.
	if result.EngagementBonus != 10 {
		t.Fatalf("bonus = %d, want 10", result.EngagementBonus)
	}
	if result.Points != 25 {
		t.Fatalf("points = %d, want 25", result.Points)
	}
	if next.Component(ComponentEngagement) != 25 {
		t.Fatalf("engagement = %d, want 25", next.Component(ComponentEngagement))
	}
	if next.AttendanceMinutes != 45 {
		t.Fatalf("attendance minutes = %d, want 45", next.AttendanceMinutes)
	}
}

func TestScoreAttendanceBonusUncapped(t *testing.T) {
	ev := event(EventWebinarAttendance)
	ev.Attendance = &WebinarAttendance{Attended: true, ChatMessages: 2, ReactionsUsed: 3}

	_, result := Score(NewScoreBreakdown(), ev)

	// 2*2 + 3*1 = 7, below the cap.
	if result.EngagementBonus != 7 {
		t.Fatalf("bonus = %d, want 7", result.EngagementBonus)
	}
	if result.Points != 22 {
		t.Fatalf("points = %d, want 22", result.Points)
	}
}

func TestScoreAttendanceNotAttended(t *testing.T) {
	ev := event(EventWebinarAttendance)
	minutes := 5
	ev.Attendance = &WebinarAttendance{Attended: false, DurationMinutes: &minutes, ChatMessages: 4}

	next, result := Score(NewScoreBreakdown(), ev)

	if result.Points != 0 {
		t.Fatalf("points = %d, want 0 for non-attendee", result.Points)
	}
	if next.Total != 0 {
		t.Fatalf("total = %d, want 0", next.Total)
	}
	if next.AttendanceMinutes != 5 {
		t.Fatalf("attendance minutes = %d, want 5", next.AttendanceMinutes)
	}
}

func TestScoreAttendanceDurationDerived(t *testing.T) {
	join := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	leave := join.Add(52*time.Minute + 40*time.Second)

	ev := event(EventWebinarAttendance)
	ev.Attendance = &WebinarAttendance{Attended: true, JoinTime: &join, LeaveTime: &leave}

	_, result := Score(NewScoreBreakdown(), ev)
	if result.DurationMinutes != 53 {
		t.Fatalf("duration = %d, want 53 (rounded)", result.DurationMinutes)
	}
}

func TestScoreAdminAdjustment(t *testing.T) {
	breakdown := NewScoreBreakdown()
	breakdown.Components[ComponentActivity] = 20
	breakdown.Total = 20

	delta := -8
	ev := event(EventAdminOverride)
	ev.Admin = &AdminOverride{ScoreAdjustment: &delta}

	next, result := Score(breakdown, ev)
	if next.Total != 12 {
		t.Fatalf("total = %d, want 12", next.Total)
	}
	if result.Points != -8 {
		t.Fatalf("points = %d, want -8", result.Points)
	}
}

func TestScoreAdminAdjustmentClampedAtZero(t *testing.T) {
	breakdown := NewScoreBreakdown()
	breakdown.Components[ComponentActivity] = 5
	breakdown.Total = 5

	delta := -100
	ev := event(EventAdminOverride)
	ev.Admin = &AdminOverride{ScoreAdjustment: &delta}

	next, _ := Score(breakdown, ev)
	if next.Total != 0 {
		t.Fatalf("total = %d, want 0 after clamp", next.Total)
	}
}
