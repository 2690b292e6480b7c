// Package ingest validates and normalizes raw interaction events from
// tracking surfaces into the canonical domain shape. Raw payloads arrive as
// loosely-typed JSON with inconsistent field naming across emitters, so the
// normalizer accepts the known aliases and coerces timestamps and numbers.
package ingest

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/platform/apperr"
	"leadscore_backend/platform/phone"
	"leadscore_backend/platform/sanitize"
	"leadscore_backend/platform/validator"
)

// Normalizer turns raw event payloads into domain.InteractionEvent.
type Normalizer struct {
	val                *validator.Validator
	defaultPhoneRegion string
}

// New creates a normalizer. defaultPhoneRegion is the ISO region used to
// parse national phone numbers.
func New(val *validator.Validator, defaultPhoneRegion string) *Normalizer {
	return &Normalizer{val: val, defaultPhoneRegion: defaultPhoneRegion}
}

// Normalize validates a raw payload and produces the canonical event.
// Unknown event types pass through (they score zero); structural problems
// return apperr.Validation with the offending fields in Details. Privileged
// types are rejected outright: tracking surfaces are unauthenticated, so
// admin overrides and profile deletes only enter through the admin
// endpoints, which build those events themselves.
func (n *Normalizer) Normalize(raw map[string]any) (domain.InteractionEvent, error) {
	var problems []string

	eventID := firstString(raw, "eventId", "event_id", "id")
	if eventID == "" {
		problems = append(problems, "eventId is required")
	}

	rawType := firstString(raw, "type", "eventType", "event_type")
	if rawType == "" {
		problems = append(problems, "type is required")
	}
	eventType := domain.EventType(normalizeTypeName(rawType))
	if eventType == domain.EventAdminOverride || eventType == domain.EventGDPRDelete {
		return domain.InteractionEvent{}, apperr.Validation("event type " + string(eventType) + " is not accepted on this endpoint")
	}

	email := strings.ToLower(strings.TrimSpace(firstString(raw, "email", "identityKey", "identity_key")))
	sessionID := strings.TrimSpace(firstString(raw, "sessionId", "session_id"))
	if email == "" && sessionID == "" {
		problems = append(problems, "either email or sessionId is required")
	}
	if email != "" && n.val.Var(email, "email") != nil {
		problems = append(problems, "email is not a valid address")
	}

	ts, ok := parseTimestamp(raw["timestamp"])
	if !ok {
		problems = append(problems, "timestamp is required and must be RFC 3339 or unix epoch")
	}

	ev := domain.InteractionEvent{
		EventID:   eventID,
		SessionID: sessionID,
		Type:      eventType,
		Timestamp: ts,
	}

	if email != "" {
		ev.IdentityKey = email
	} else {
		ev.IdentityKey = domain.SessionKey(sessionID)
	}

	ev.Metadata = normalizeMetadata(raw)
	if p := firstString(raw, "phone", "phoneNumber", "phone_number"); p != "" {
		ev.Metadata = setMeta(ev.Metadata, "phone", phone.NormalizeE164(p, n.defaultPhoneRegion))
	}
	if name := firstString(raw, "name", "fullName", "full_name"); name != "" {
		ev.Metadata = setMeta(ev.Metadata, "name", sanitize.Text(name))
	}
	if source := firstString(raw, "source", "utmSource", "utm_source"); source != "" {
		ev.Metadata = setMeta(ev.Metadata, "source", source)
	}

	if eventType == domain.EventWebinarAttendance {
		att, attProblems := normalizeAttendance(raw)
		problems = append(problems, attProblems...)
		ev.Attendance = att
	}

	if len(problems) > 0 {
		return domain.InteractionEvent{}, apperr.Validation("invalid event payload").WithDetails(problems)
	}
	return ev, nil
}

// normalizeTypeName folds "pageVisit", "page-visit" and "Page Visit" into
// the canonical snake_case name.
func normalizeTypeName(raw string) string {
	raw = strings.TrimSpace(raw)
	var b strings.Builder
	for i, r := range raw {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		case r == '-' || r == ' ':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeAttendance(raw map[string]any) (*domain.WebinarAttendance, []string) {
	nested, _ := raw["attendance"].(map[string]any)
	if nested == nil {
		nested = raw // some emitters flatten the attendance fields
	}

	att := &domain.WebinarAttendance{
		WebinarID:      firstString(nested, "webinarId", "webinar_id"),
		ChatMessages:   firstInt(nested, "chatMessages", "chat_messages"),
		QuestionsAsked: firstInt(nested, "questionsAsked", "questions_asked"),
		PollResponses:  firstInt(nested, "pollResponses", "poll_responses"),
		ReactionsUsed:  firstInt(nested, "reactionsUsed", "reactions_used"),
	}

	attended, ok := nested["attended"].(bool)
	if !ok {
		return nil, []string{"attendance.attended is required"}
	}
	att.Attended = attended

	if v, ok := lookupInt(nested, "durationMinutes", "duration_minutes"); ok {
		att.DurationMinutes = &v
	}
	if t, ok := parseTimestamp(first(nested, "joinTime", "join_time")); ok {
		att.JoinTime = &t
	}
	if t, ok := parseTimestamp(first(nested, "leaveTime", "leave_time")); ok {
		att.LeaveTime = &t
	}

	return att, nil
}

func normalizeMetadata(raw map[string]any) map[string]any {
	nested, _ := raw["metadata"].(map[string]any)
	if nested == nil {
		return nil
	}
	out := make(map[string]any, len(nested))
	for k, v := range nested {
		out[k] = v
	}
	return out
}

func setMeta(meta map[string]any, key string, value any) map[string]any {
	if meta == nil {
		meta = map[string]any{}
	}
	meta[key] = value
	return meta
}

func first(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(raw map[string]any, keys ...string) string {
	if s, ok := first(raw, keys...).(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func firstInt(raw map[string]any, keys ...string) int {
	v, _ := lookupInt(raw, keys...)
	return v
}

func lookupInt(raw map[string]any, keys ...string) (int, bool) {
	switch v := first(raw, keys...).(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}

// parseTimestamp accepts RFC 3339 strings and unix epochs in seconds or
// milliseconds, returning the instant in UTC.
func parseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return parsed.UTC(), true
		}
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed.UTC(), true
		}
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		if t > 1e12 { // millisecond epoch
			sec, ms := int64(t)/1000, int64(t)%1000
			return time.Unix(sec, ms*int64(time.Millisecond)).UTC(), true
		}
		sec, frac := math.Modf(t)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC(), true
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return parseTimestamp(f)
		}
	case time.Time:
		return t.UTC(), true
	}
	return time.Time{}, false
}
