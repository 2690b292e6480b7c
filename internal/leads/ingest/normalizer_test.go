package ingest

import (
	"testing"
	"time"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/platform/apperr"
	"leadscore_backend/platform/validator"
)

func newNormalizer() *Normalizer {
	return New(validator.New(), "US")
}

func TestNormalizeBasicEvent(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "page_visit",
		"email":     " Lead@Example.COM ",
		"timestamp": "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.IdentityKey != "lead@example.com" {
		t.Fatalf("identity key = %q, want lowercased email", ev.IdentityKey)
	}
	if ev.Type != domain.EventPageVisit {
		t.Fatalf("type = %s, want page_visit", ev.Type)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", ev.Timestamp, want)
	}
}

func TestNormalizeFieldAliases(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"event_id":   "e1",
		"event_type": "ctaClick",
		"session_id": "sess-1",
		"timestamp":  float64(1772366400), // seconds epoch
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.EventID != "e1" {
		t.Fatalf("eventID = %q", ev.EventID)
	}
	if ev.Type != domain.EventCTAClick {
		t.Fatalf("type = %s, want cta_click", ev.Type)
	}
	if ev.IdentityKey != domain.SessionKey("sess-1") {
		t.Fatalf("identity key = %q, want session key", ev.IdentityKey)
	}
}

func TestNormalizeMillisecondEpoch(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "page_visit",
		"sessionId": "s",
		"timestamp": float64(1772366400123),
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Timestamp.UnixMilli() != 1772366400123 {
		t.Fatalf("timestamp = %v", ev.Timestamp)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	_, err := newNormalizer().Normalize(map[string]any{
		"type": "page_visit",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details := err.(*apperr.Error).Details.([]string)
	if len(details) < 3 { // eventId, identity, timestamp
		t.Fatalf("details = %v, want all problems reported", details)
	}
}

func TestNormalizeInvalidEmail(t *testing.T) {
	_, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "page_visit",
		"email":     "not-an-address",
		"timestamp": "2026-03-01T10:00:00Z",
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeUnknownTypePassesThrough(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "newsletter_open",
		"sessionId": "s",
		"timestamp": "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Type != domain.EventType("newsletter_open") {
		t.Fatalf("type = %s", ev.Type)
	}
}

func TestNormalizePhoneToE164(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "cta_click",
		"email":     "lead@example.com",
		"phone":     "(415) 555-0101",
		"timestamp": "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if got := ev.Metadata["phone"]; got != "+14155550101" {
		t.Fatalf("phone = %v, want +14155550101", got)
	}
}

func TestNormalizeWebinarAttendance(t *testing.T) {
	ev, err := newNormalizer().Normalize(map[string]any{
		"eventId":   "e1",
		"type":      "webinar_attendance",
		"email":     "lead@example.com",
		"timestamp": "2026-03-01T10:00:00Z",
		"attendance": map[string]any{
			"webinarId":      "web-1",
			"attended":       true,
			"chat_messages":  float64(3),
			"questionsAsked": float64(1),
			"joinTime":       "2026-03-01T18:00:00Z",
			"leaveTime":      "2026-03-01T18:45:00Z",
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	att := ev.Attendance
	if att == nil || !att.Attended {
		t.Fatalf("attendance = %+v", att)
	}
	if att.ChatMessages != 3 || att.QuestionsAsked != 1 {
		t.Fatalf("engagement counters = %+v", att)
	}
	if att.JoinTime == nil || att.LeaveTime == nil {
		t.Fatal("join/leave times not parsed")
	}
}

func TestNormalizeAttendanceMissingAttended(t *testing.T) {
	_, err := newNormalizer().Normalize(map[string]any{
		"eventId":    "e1",
		"type":       "webinar_attendance",
		"email":      "lead@example.com",
		"timestamp":  "2026-03-01T10:00:00Z",
		"attendance": map[string]any{"webinarId": "web-1"},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeRejectsPrivilegedTypes(t *testing.T) {
	for _, typ := range []string{"admin_override", "adminOverride", "gdpr_delete"} {
		_, err := newNormalizer().Normalize(map[string]any{
			"eventId":   "e1",
			"type":      typ,
			"email":     "lead@example.com",
			"timestamp": "2026-03-01T10:00:00Z",
			"admin":     map[string]any{"tier": "soft_member", "scoreAdjustment": float64(500)},
		})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("type %q: expected validation error, got %v", typ, err)
		}
	}
}
