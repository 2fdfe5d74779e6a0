package cli

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-engine/internal/dto"
	"github.com/noah-isme/sma-timetable-engine/internal/models"
	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
)

type pollerStub struct {
	statuses []models.JobStatus
	calls    int
}

func (p *pollerStub) Poll(ctx context.Context, actor *models.JWTClaims, jobID string) (*dto.GenerationJobResponse, error) {
	if jobID == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "generation job not found")
	}
	status := p.statuses[len(p.statuses)-1]
	if p.calls < len(p.statuses) {
		status = p.statuses[p.calls]
	}
	p.calls++
	return &dto.GenerationJobResponse{JobID: jobID, Status: status}, nil
}

func TestPollUntilTerminal(t *testing.T) {
	poller := &pollerStub{statuses: []models.JobStatus{models.JobStatusPending, models.JobStatusGenerating, models.JobStatusCompleted}}
	var seen []models.JobStatus

	job, err := pollUntilTerminal(context.Background(), poller, "job-1", time.Millisecond, func(j *dto.GenerationJobResponse) {
		seen = append(seen, j.Status)
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, []models.JobStatus{models.JobStatusPending, models.JobStatusGenerating, models.JobStatusCompleted}, seen)
}

func TestPollUntilTerminalTimesOut(t *testing.T) {
	poller := &pollerStub{statuses: []models.JobStatus{models.JobStatusGenerating}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	job, err := pollUntilTerminal(ctx, poller, "job-1", 5*time.Millisecond, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.JobStatusGenerating, job.Status)
}

func TestPollUntilTerminalUnknownJob(t *testing.T) {
	_, err := pollUntilTerminal(context.Background(), &pollerStub{}, "missing", time.Millisecond, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestParseRole(t *testing.T) {
	role, err := parseRole(" admin ")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)

	_, err = parseRole("student")
	assert.Error(t, err)
}
