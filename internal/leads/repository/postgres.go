package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"leadscore_backend/internal/leads/domain"
	"leadscore_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadNotFoundMessage = "lead not found"

const profileColumns = `id, identity_key, email, name, phone, source, tier, sticky,
	components, total, attendance_minutes, has_attended_webinar, metadata,
	created_at, last_interaction`

// PostgresRepo implements Repository with PostgreSQL.
type PostgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL-backed repository.
func NewPostgres(pool *pgxpool.Pool) *PostgresRepo {
	return &PostgresRepo{pool: pool}
}

// Compile-time check that PostgresRepo implements Repository.
var _ Repository = (*PostgresRepo)(nil)

// GetByKey retrieves a profile by its identity key.
func (r *PostgresRepo) GetByKey(ctx context.Context, identityKey string) (domain.LeadProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM leads WHERE identity_key = $1`

	row := r.pool.QueryRow(ctx, query, identityKey)
	profile, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeadProfile{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.LeadProfile{}, fmt.Errorf("get lead by key: %w", err)
	}

	return profile, nil
}

// Create inserts a fresh profile.
func (r *PostgresRepo) Create(ctx context.Context, profile domain.LeadProfile) error {
	components, metadata, err := marshalProfileJSON(profile)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (id, identity_key, email, name, phone, source, tier, sticky,
			components, total, attendance_minutes, has_attended_webinar, metadata,
			created_at, last_interaction)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		profile.ID, profile.IdentityKey, nullable(profile.Email), nullable(profile.Name),
		nullable(profile.Phone), nullable(profile.Source), string(profile.Tier), profile.Sticky,
		components, profile.Breakdown.Total, profile.Breakdown.AttendanceMinutes,
		profile.HasAttendedWebinar, metadata, profile.CreatedAt, profile.LastInteraction,
	)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

// EventExists reports whether an event ID was already applied to a lead.
func (r *PostgresRepo) EventExists(ctx context.Context, leadID uuid.UUID, eventID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM interaction_log WHERE lead_id = $1 AND event_id = $2)`,
		leadID, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("event exists: %w", err)
	}
	return exists, nil
}

// ApplyEvent appends the event and saves the profile in one transaction.
// The unique (lead_id, event_id) constraint is the final idempotency
// authority: a conflicting insert leaves everything untouched.
func (r *PostgresRepo) ApplyEvent(ctx context.Context, profile domain.LeadProfile, ev domain.InteractionEvent) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}
	components, metadata, err := marshalProfileJSON(profile)
	if err != nil {
		return false, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin apply event: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO interaction_log (lead_id, event_id, event_type, occurred_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT uq_interaction_log_lead_event DO NOTHING`,
		profile.ID, ev.EventID, string(ev.Type), ev.Timestamp, payload,
	)
	if err != nil {
		return false, fmt.Errorf("append interaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE leads
		SET email = COALESCE($2, email), name = COALESCE($3, name),
			phone = COALESCE($4, phone), source = COALESCE($5, source),
			tier = $6, sticky = $7, components = $8, total = $9,
			attendance_minutes = $10, has_attended_webinar = $11,
			metadata = $12, last_interaction = $13
		WHERE id = $1`,
		profile.ID, nullable(profile.Email), nullable(profile.Name), nullable(profile.Phone),
		nullable(profile.Source), string(profile.Tier), profile.Sticky, components,
		profile.Breakdown.Total, profile.Breakdown.AttendanceMinutes,
		profile.HasAttendedWebinar, metadata, profile.LastInteraction,
	)
	if err != nil {
		return false, fmt.Errorf("save lead state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit apply event: %w", err)
	}
	return true, nil
}

// ListEvents returns a page of the lead's log in arrival order.
func (r *PostgresRepo) ListEvents(ctx context.Context, leadID uuid.UUID, q EventQuery) (Page, error) {
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `SELECT seq, payload FROM interaction_log WHERE lead_id = $1`
	args := []any{leadID}

	if cursor, err := strconv.ParseInt(q.Cursor, 10, 64); err == nil && q.Cursor != "" {
		args = append(args, cursor)
		query += fmt.Sprintf(" AND seq > $%d", len(args))
	}
	if !q.From.IsZero() {
		args = append(args, q.From)
		query += fmt.Sprintf(" AND occurred_at >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		query += fmt.Sprintf(" AND occurred_at <= $%d", len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY seq ASC LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var page Page
	for rows.Next() {
		var seq int64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return Page{}, fmt.Errorf("scan interaction: %w", err)
		}
		var ev domain.InteractionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return Page{}, fmt.Errorf("decode interaction payload: %w", err)
		}
		page.Events = append(page.Events, LoggedEvent{Seq: seq, InteractionEvent: ev})
	}
	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("list interactions: %w", err)
	}

	if len(page.Events) > limit {
		page.Events = page.Events[:limit]
		page.NextCursor = strconv.FormatInt(page.Events[limit-1].Seq, 10)
	}
	return page, nil
}

// AllEvents returns the full log in arrival order for replay.
func (r *PostgresRepo) AllEvents(ctx context.Context, leadID uuid.UUID) ([]domain.InteractionEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload FROM interaction_log WHERE lead_id = $1 ORDER BY seq ASC`, leadID)
	if err != nil {
		return nil, fmt.Errorf("load interaction log: %w", err)
	}
	defer rows.Close()

	var events []domain.InteractionEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		var ev domain.InteractionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("decode interaction payload: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Merge moves the source lead's log onto the merged profile and deletes it.
func (r *PostgresRepo) Merge(ctx context.Context, sourceID uuid.UUID, merged domain.LeadProfile) error {
	components, metadata, err := marshalProfileJSON(merged)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	// Move log rows, skipping event IDs the target already has.
	_, err = tx.Exec(ctx, `
		UPDATE interaction_log SET lead_id = $1
		WHERE lead_id = $2
		  AND event_id NOT IN (SELECT event_id FROM interaction_log WHERE lead_id = $1)`,
		merged.ID, sourceID,
	)
	if err != nil {
		return fmt.Errorf("move interaction log: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM interaction_log WHERE lead_id = $1`, sourceID); err != nil {
		return fmt.Errorf("drop duplicate interactions: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = $1`, sourceID); err != nil {
		return fmt.Errorf("delete source lead: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE leads
		SET email = COALESCE($2, email), name = COALESCE($3, name),
			phone = COALESCE($4, phone), source = COALESCE($5, source),
			tier = $6, sticky = $7, components = $8, total = $9,
			attendance_minutes = $10, has_attended_webinar = $11,
			metadata = $12, created_at = $13, last_interaction = $14
		WHERE id = $1`,
		merged.ID, nullable(merged.Email), nullable(merged.Name), nullable(merged.Phone),
		nullable(merged.Source), string(merged.Tier), merged.Sticky, components,
		merged.Breakdown.Total, merged.Breakdown.AttendanceMinutes,
		merged.HasAttendedWebinar, metadata, merged.CreatedAt, merged.LastInteraction,
	)
	if err != nil {
		return fmt.Errorf("save merged lead: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

// Rename re-keys a profile when an anonymous session resolves to an identity.
func (r *PostgresRepo) Rename(ctx context.Context, id uuid.UUID, newKey, email string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET identity_key = $2, email = $3 WHERE id = $1`,
		id, newKey, nullable(email),
	)
	if err != nil {
		return fmt.Errorf("rename lead: %w", err)
	}
	return nil
}

// Delete removes a profile; the log follows via ON DELETE CASCADE.
func (r *PostgresRepo) Delete(ctx context.Context, leadID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM leads WHERE id = $1`, leadID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	return nil
}

// Ping checks database connectivity for readiness probes.
func (r *PostgresRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanProfile(row pgx.Row) (domain.LeadProfile, error) {
	var p domain.LeadProfile
	var email, name, phone, source *string
	var tier string
	var components, metadata []byte

	err := row.Scan(
		&p.ID, &p.IdentityKey, &email, &name, &phone, &source, &tier, &p.Sticky,
		&components, &p.Breakdown.Total, &p.Breakdown.AttendanceMinutes,
		&p.HasAttendedWebinar, &metadata, &p.CreatedAt, &p.LastInteraction,
	)
	if err != nil {
		return domain.LeadProfile{}, err
	}

	p.Email = deref(email)
	p.Name = deref(name)
	p.Phone = deref(phone)
	p.Source = deref(source)
	p.Tier = domain.Tier(tier)

	p.Breakdown.Components = map[string]int{}
	if len(components) > 0 {
		if err := json.Unmarshal(components, &p.Breakdown.Components); err != nil {
			return domain.LeadProfile{}, fmt.Errorf("decode components: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return domain.LeadProfile{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return p, nil
}

func marshalProfileJSON(profile domain.LeadProfile) ([]byte, []byte, error) {
	components, err := json.Marshal(profile.Breakdown.Components)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal components: %w", err)
	}
	var metadata []byte
	if profile.Metadata != nil {
		metadata, err = json.Marshal(profile.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return components, metadata, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
