package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-engine/internal/models"
)

type violationStore interface {
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, violations []models.ConstraintViolation) error
	ListByJob(ctx context.Context, jobID string) ([]models.ConstraintViolation, error)
}

type escalator interface {
	Escalate(ctx context.Context, escalation Escalation) error
}

// ViolationGroup is every violation sharing one code.
type ViolationGroup struct {
	Code     string          `json:"code"`
	Severity models.Severity `json:"severity"`
	Message  string          `json:"message"`
	Count    int             `json:"count"`
}

// ViolationDigest is the aggregated, severity-ordered view of a violation list.
type ViolationDigest struct {
	Groups   []ViolationGroup `json:"groups"`
	Highest  models.Severity  `json:"highest_severity,omitempty"`
	Blocking bool             `json:"blocking"`
	Text     string           `json:"text"`
}

// AggregateErrors groups violations by code, counts repeats and renders a
// digest ordered from most to least severe. A group takes the highest
// severity and the first message seen for its code.
func AggregateErrors(violations []models.ConstraintViolation) ViolationDigest {
	if len(violations) == 0 {
		return ViolationDigest{Groups: []ViolationGroup{}}
	}

	index := make(map[string]int, len(violations))
	groups := make([]ViolationGroup, 0, len(violations))
	for _, v := range violations {
		severity := v.Severity
		if severity == "" {
			severity = models.DefaultSeverity(v.Code)
		}
		if i, ok := index[v.Code]; ok {
			groups[i].Count++
			if severity.Rank() > groups[i].Severity.Rank() {
				groups[i].Severity = severity
			}
			continue
		}
		index[v.Code] = len(groups)
		groups = append(groups, ViolationGroup{Code: v.Code, Severity: severity, Message: v.Message, Count: 1})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Severity.Rank() != groups[j].Severity.Rank() {
			return groups[i].Severity.Rank() > groups[j].Severity.Rank()
		}
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Code < groups[j].Code
	})

	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		line := fmt.Sprintf("[%s] %s", strings.ToUpper(string(g.Severity)), g.Message)
		if g.Count > 1 {
			line = fmt.Sprintf("%s (%d occurrences)", line, g.Count)
		}
		lines = append(lines, line)
	}

	return ViolationDigest{
		Groups:   groups,
		Highest:  groups[0].Severity,
		Blocking: groups[0].Severity.Blocking(),
		Text:     strings.Join(lines, "\n"),
	}
}

// ViolationService persists violations for audit and escalates critical ones
// to school administrators.
type ViolationService struct {
	store     violationStore
	escalator escalator
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewViolationService constructs the service. escalator may be nil.
func NewViolationService(store violationStore, escalator escalator, metrics *MetricsService, logger *zap.Logger) *ViolationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ViolationService{store: store, escalator: escalator, metrics: metrics, logger: logger}
}

// Record persists violations through exec, which may be a transaction.
// Missing severities are filled from the code catalogue.
func (s *ViolationService) Record(ctx context.Context, exec sqlx.ExtContext, violations []models.ConstraintViolation) error {
	if len(violations) == 0 {
		return nil
	}
	for i := range violations {
		if violations[i].Severity == "" {
			violations[i].Severity = models.DefaultSeverity(violations[i].Code)
		}
	}
	if err := s.store.CreateBatch(ctx, exec, violations); err != nil {
		return err
	}
	for _, v := range violations {
		s.metrics.RecordViolation(v.Code, v.Severity)
	}
	return nil
}

// Escalate notifies administrators about the critical entries of an already
// persisted batch. Delivery problems are logged, never returned.
func (s *ViolationService) Escalate(ctx context.Context, violations []models.ConstraintViolation) {
	critical := make([]models.ConstraintViolation, 0)
	for _, v := range violations {
		if v.Severity == models.SeverityCritical {
			critical = append(critical, v)
		}
	}
	if len(critical) == 0 {
		return
	}

	escalation := Escalation{
		Violations: critical,
		Digest:     AggregateErrors(critical).Text,
		RaisedAt:   time.Now().UTC(),
	}
	first := critical[0]
	if first.SchoolID != nil {
		escalation.SchoolID = *first.SchoolID
	}
	if first.TermID != nil {
		escalation.TermID = *first.TermID
	}
	if first.JobID != nil {
		escalation.JobID = *first.JobID
	}

	s.logger.Error("critical constraint violation",
		zap.String("school_id", escalation.SchoolID),
		zap.String("job_id", escalation.JobID),
		zap.String("digest", escalation.Digest))

	if s.escalator == nil {
		return
	}
	if err := s.escalator.Escalate(ctx, escalation); err != nil {
		s.metrics.RecordEscalation("enqueue_failed")
		s.logger.Warn("failed to escalate critical violations", zap.String("job_id", escalation.JobID), zap.Error(err))
	}
}

// ListByJob returns the violations recorded against a generation job.
func (s *ViolationService) ListByJob(ctx context.Context, jobID string) ([]models.ConstraintViolation, error) {
	violations, err := s.store.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if violations == nil {
		violations = []models.ConstraintViolation{}
	}
	return violations, nil
}
