package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"leadscore_backend/internal/notification/outbox"
	"leadscore_backend/platform/config"
	"leadscore_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
	"github.com/redis/go-redis/v9"
)

const (
	webhookTimeout  = 10 * time.Second
	dedupeKeyPrefix = "notify:dispatched:"
	dedupeTTL       = 24 * time.Hour
)

// Dispatcher delivers one tier-change notification: a webhook POST to the
// configured CRM endpoint plus a sales alert email for high-value tiers.
// Delivery is at-least-once from the caller's perspective; the redis dedupe
// key keeps re-deliveries of the same triggering event from reaching
// recipients twice.
type Dispatcher struct {
	cfg   config.NotificationConfig
	rdb   *redis.Client
	httpc *http.Client
	log   *logger.Logger
}

// NewDispatcher creates a dispatcher. rdb may be nil, in which case the
// cross-process dedupe check is skipped (the outbox still dedupes per row).
func NewDispatcher(cfg config.NotificationConfig, rdb *redis.Client, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:   cfg,
		rdb:   rdb,
		httpc: &http.Client{Timeout: webhookTimeout},
		log:   log,
	}
}

// webhookPayload is the body POSTed to the tier webhook.
type webhookPayload struct {
	LeadID            string    `json:"leadId"`
	IdentityKey       string    `json:"identityKey"`
	FromTier          string    `json:"fromTier"`
	ToTier            string    `json:"toTier"`
	TriggeringEventID string    `json:"triggeringEventId"`
	ChangedAt         time.Time `json:"changedAt"`
}

// Deliver sends the notification for one outbox record. Returning an error
// signals the caller to retry; scored state is never touched here.
func (d *Dispatcher) Deliver(ctx context.Context, rec outbox.Record) error {
	fresh, err := d.claimDedupe(ctx, rec.TriggeringEventID)
	if err != nil {
		d.log.Warn("notification dedupe check failed", "error", err)
		// Fall through: double delivery beats no delivery.
	} else if !fresh {
		d.log.Info("notification already dispatched",
			"triggering_event_id", rec.TriggeringEventID)
		return nil
	}

	if err := d.postWebhook(ctx, rec); err != nil {
		d.releaseDedupe(ctx, rec.TriggeringEventID)
		return err
	}

	if d.shouldAlertSales(rec.ToTier) {
		if err := d.sendSalesAlert(ctx, rec); err != nil {
			// The webhook already landed; log the email failure and move on
			// rather than re-posting the webhook on retry.
			d.log.Error("sales alert email failed",
				"lead_key", rec.IdentityKey, "error", err)
		}
	}

	return nil
}

func (d *Dispatcher) claimDedupe(ctx context.Context, triggeringEventID string) (bool, error) {
	if d.rdb == nil {
		return true, nil
	}
	return d.rdb.SetNX(ctx, dedupeKeyPrefix+triggeringEventID, 1, dedupeTTL).Result()
}

func (d *Dispatcher) releaseDedupe(ctx context.Context, triggeringEventID string) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, dedupeKeyPrefix+triggeringEventID).Err(); err != nil {
		d.log.Warn("notification dedupe release failed", "error", err)
	}
}

func (d *Dispatcher) postWebhook(ctx context.Context, rec outbox.Record) error {
	url := d.cfg.GetTierWebhookURL()
	if url == "" {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		LeadID:            rec.LeadID.String(),
		IdentityKey:       rec.IdentityKey,
		FromTier:          rec.FromTier,
		ToTier:            rec.ToTier,
		TriggeringEventID: rec.TriggeringEventID,
		ChangedAt:         rec.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", rec.TriggeringEventID)

	resp, err := d.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("post tier webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("tier webhook returned %d", resp.StatusCode)
	}
	return nil
}

// shouldAlertSales reports whether the destination tier warrants waking up a
// human.
func (d *Dispatcher) shouldAlertSales(toTier string) bool {
	if !d.cfg.GetEmailEnabled() || d.cfg.GetSalesAlertRecipient() == "" {
		return false
	}
	switch toTier {
	case "hot_lead", "pending_approval", "soft_member":
		return true
	}
	return false
}

func (d *Dispatcher) sendSalesAlert(ctx context.Context, rec outbox.Record) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(d.cfg.GetEmailFromName(), d.cfg.GetEmailFromAddress()); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(d.cfg.GetSalesAlertRecipient()); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(fmt.Sprintf("Lead %s is now %s", rec.IdentityKey, rec.ToTier))
	msg.SetBodyString(gomail.TypeTextHTML, renderSalesAlert(rec))

	client, err := gomail.NewClient(d.cfg.GetSMTPHost(),
		gomail.WithPort(d.cfg.GetSMTPPort()),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(d.cfg.GetSMTPUsername()),
		gomail.WithPassword(d.cfg.GetSMTPPassword()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func renderSalesAlert(rec outbox.Record) string {
	return fmt.Sprintf(
		`<html><body>
<h2>Lead tier change</h2>
<p><strong>%s</strong> moved from <strong>%s</strong> to <strong>%s</strong> at %s.</p>
<p>Triggering event: %s</p>
</body></html>`,
		rec.IdentityKey, rec.FromTier, rec.ToTier,
		rec.OccurredAt.Format(time.RFC3339), rec.TriggeringEventID,
	)
}
