package solver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-engine/pkg/errors"
	"github.com/noah-isme/sma-timetable-engine/pkg/middleware/requestid"
)

type observerStub struct {
	mu    sync.Mutex
	calls []string
}

func (o *observerStub) ObserveSolverCall(operation, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, operation+":"+outcome)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *observerStub) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	obs := &observerStub{}
	return NewClient(Config{BaseURL: srv.URL, SchemaVersion: "1"}, srv.Client(), obs, nil), obs
}

func TestClientSubmit(t *testing.T) {
	var got Request
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate-timetable", r.URL.Path)
		assert.Equal(t, "req-42", r.Header.Get(requestid.Header))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]string{"job_id": "solver-1", "status": "pending", "message": "queued"})
	})

	ctx := requestid.WithValue(context.Background(), "req-42")
	resp, err := client.Submit(ctx, Request{OptimizationGoals: []string{GoalBalanceWorkload}})
	require.NoError(t, err)
	assert.Equal(t, "solver-1", resp.JobID)
	assert.Equal(t, "1", got.SchemaVersion)
	assert.Equal(t, []string{"submit:ok"}, obs.calls)
}

func TestClientSubmitNon2xxIsUpstreamUnavailable(t *testing.T) {
	client, obs := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Submit(context.Background(), Request{})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUpstreamUnavailable.Code, appErr.Code)
	assert.Equal(t, []string{"submit:http_503"}, obs.calls)
}

func TestClientSubmitTransportFailure(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil, nil, nil)
	_, err := client.Submit(context.Background(), Request{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUpstreamUnavailable))
}

func TestClientSubmitMissingJobID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	})
	_, err := client.Submit(context.Background(), Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestClientStatusProcessing(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/job-status/solver-1", r.URL.Path)
		_, _ = w.Write([]byte(`{"job_id":"solver-1","status":"processing","progress":40,"message":"solving","created_at":"2024-07-01T08:00:00"}`))
	})

	resp, err := client.Status(context.Background(), "solver-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, resp.Status)
	assert.Equal(t, 40, resp.Progress)
	assert.Nil(t, resp.Result)
}

func TestClientStatusCompletedDecodesResult(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"solver-1","status":"completed","progress":100,"message":"done",
"result":{"schema_version":"1","lessons":[{"teaching_assignment_id":"ta-1","date":"2024-07-15","timeslot_id":"slot-1","room_id":"room-1"}],
"statistics":{"total_lessons":1}}}`))
	})

	resp, err := client.Status(context.Background(), "solver-1")
	require.NoError(t, err)
	require.NotNil(t, resp.Result)
	require.Len(t, resp.Result.Lessons, 1)
	assert.Equal(t, "room-1", *resp.Result.Lessons[0].RoomID)
	assert.Equal(t, 1.0, resp.Result.Statistics["total_lessons"])
}

func TestClientStatusRejectsContractViolations(t *testing.T) {
	cases := map[string]string{
		"missing result":   `{"job_id":"s","status":"completed","progress":100}`,
		"wrong version":    `{"job_id":"s","status":"completed","progress":100,"result":{"schema_version":"2","lessons":[]}}`,
		"bad date":         `{"job_id":"s","status":"completed","progress":100,"result":{"schema_version":"1","lessons":[{"teaching_assignment_id":"ta","date":"15/07/2024","timeslot_id":"x"}]}}`,
		"missing slot":     `{"job_id":"s","status":"completed","progress":100,"result":{"schema_version":"1","lessons":[{"teaching_assignment_id":"ta","date":"2024-07-15"}]}}`,
		"legacy timetable": `{"job_id":"s","status":"completed","progress":100,"result":{"schema_version":"1","timetable":[]}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			resp, err := client.Status(context.Background(), "s")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContractViolation)
			require.NotNil(t, resp)
			assert.Equal(t, StatusCompleted, resp.Status)
		})
	}
}

func TestClientStatusAcceptsUnlistedState(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"s","status":"running","progress":40}`))
	})
	resp, err := client.Status(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, 40, resp.Progress)
	assert.Nil(t, resp.Result)
}

func TestClientStatusRequiresState(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"job_id":"s","progress":10}`))
	})
	resp, err := client.Status(context.Background(), "s")
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestClientCancel(t *testing.T) {
	called := false
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cancel/solver-1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	require.NoError(t, client.Cancel(context.Background(), "solver-1"))
	assert.True(t, called)
}
