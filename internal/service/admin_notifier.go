package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
	"github.com/noah-isme/sma-timetable-engine/pkg/jobs"
)

type adminDirectory interface {
	ListAdministrators(ctx context.Context, schoolID string) ([]models.SchoolAdministrator, error)
}

// Escalation is the payload delivered to administrators for critical violations.
type Escalation struct {
	SchoolID   string                       `json:"school_id,omitempty"`
	TermID     string                       `json:"term_id,omitempty"`
	JobID      string                       `json:"job_id,omitempty"`
	Recipients []string                     `json:"recipients"`
	Digest     string                       `json:"digest"`
	Violations []models.ConstraintViolation `json:"violations"`
	RaisedAt   time.Time                    `json:"raised_at"`
}

// AdminNotifierConfig configures webhook delivery.
type AdminNotifierConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Workers    int
	Retries    int
	RetryDelay time.Duration
}

// AdminNotifier delivers escalations through a background queue. Without a
// webhook URL deliveries are written to the error log instead.
type AdminNotifier struct {
	admins  adminDirectory
	cfg     AdminNotifierConfig
	http    *http.Client
	queue   *jobs.Queue[Escalation]
	metrics *MetricsService
	logger  *zap.Logger
}

// NewAdminNotifier constructs the notifier; call Start before escalating.
func NewAdminNotifier(admins adminDirectory, cfg AdminNotifierConfig, httpClient *http.Client, metrics *MetricsService, logger *zap.Logger) *AdminNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	n := &AdminNotifier{admins: admins, cfg: cfg, http: httpClient, metrics: metrics, logger: logger}
	n.queue = jobs.NewQueue("admin-notifications", n.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return n
}

// Start launches the delivery workers.
func (n *AdminNotifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
}

// Stop drains the workers.
func (n *AdminNotifier) Stop() {
	n.queue.Stop()
}

// Escalate resolves recipients and enqueues the escalation.
func (n *AdminNotifier) Escalate(ctx context.Context, escalation Escalation) error {
	if escalation.SchoolID != "" && n.admins != nil && len(escalation.Recipients) == 0 {
		admins, err := n.admins.ListAdministrators(ctx, escalation.SchoolID)
		if err != nil {
			n.logger.Warn("failed to resolve school administrators", zap.String("school_id", escalation.SchoolID), zap.Error(err))
		}
		for _, a := range admins {
			if a.Email != "" {
				escalation.Recipients = append(escalation.Recipients, a.Email)
			}
		}
	}
	if escalation.Recipients == nil {
		escalation.Recipients = []string{}
	}
	return n.queue.Enqueue(ctx, jobs.Task[Escalation]{ID: uuid.NewString(), Payload: escalation})
}

func (n *AdminNotifier) deliver(ctx context.Context, task jobs.Task[Escalation]) error {
	esc := task.Payload
	if n.cfg.WebhookURL == "" {
		n.logger.Error("administrator escalation",
			zap.String("school_id", esc.SchoolID),
			zap.String("job_id", esc.JobID),
			zap.Strings("recipients", esc.Recipients),
			zap.String("digest", esc.Digest))
		n.metrics.RecordEscalation("logged")
		return nil
	}

	body, err := json.Marshal(esc)
	if err != nil {
		n.metrics.RecordEscalation("encode_failed")
		n.logger.Error("failed to encode escalation", zap.Error(err))
		return nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build escalation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", task.ID)

	resp, err := n.http.Do(req)
	if err != nil {
		n.metrics.RecordEscalation("transport_error")
		return fmt.Errorf("deliver escalation: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.metrics.RecordEscalation("rejected")
		return fmt.Errorf("escalation webhook returned status %d", resp.StatusCode)
	}
	n.metrics.RecordEscalation("delivered")
	return nil
}
