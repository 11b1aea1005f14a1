// ABOUTME: Tests for workflow tool execution
// ABOUTME: Covers placeholder expansion, step chaining and failure propagation

package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bakhitov/crafty-gateway/internal/config"
)

func TestWorkflow_SingleStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/db", r.URL.Path)
		w.Write([]byte(`{"healthy":true}`))
	}))
	defer srv.Close()

	l := newWorkflowLoader(StaticWorkflowSource{{
		ID:   "wf-1",
		Name: "check_status",
		Steps: []HTTPStep{
			{Method: http.MethodGet, URL: srv.URL + "/status/{{service}}"},
		},
	}}, slog.Default())

	ts := l.Load(context.Background(), "user-1")
	require.Len(t, ts, 1)

	out, err := ts[0].Execute(context.Background(), json.RawMessage(`{"service":"db"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"healthy":true}`, out)
}

func TestWorkflow_StepsChainPreviousOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/first":
			w.Write([]byte("token-abc"))
		case "/second":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, `{"token":"token-abc"}`, string(body))
			w.Write([]byte("done"))
		}
	}))
	defer srv.Close()

	l := newWorkflowLoader(StaticWorkflowSource{{
		ID:   "wf-2",
		Name: "two_step",
		Steps: []HTTPStep{
			{Method: http.MethodGet, URL: srv.URL + "/first"},
			{Method: http.MethodPost, URL: srv.URL + "/second", BodyTemplate: `{"token":"{{previous}}"}`},
		},
	}}, slog.Default())

	ts := l.Load(context.Background(), "user-1")
	require.Len(t, ts, 1)

	out, err := ts[0].Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestWorkflow_FailingStepAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	l := newWorkflowLoader(StaticWorkflowSource{{
		ID:   "wf-3",
		Name: "broken",
		Steps: []HTTPStep{
			{Method: http.MethodGet, URL: srv.URL + "/x"},
		},
	}}, slog.Default())

	ts := l.Load(context.Background(), "user-1")
	require.Len(t, ts, 1)

	_, err := ts[0].Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
}

func TestWorkflowsFromConfig(t *testing.T) {
	source := WorkflowsFromConfig([]config.WorkflowConfig{
		{
			ID:          "wf-1",
			Name:        "fetch_status",
			Description: "Fetch service status",
			InputSchema: `{"type":"object","properties":{"service":{"type":"string"}}}`,
			Steps: []config.WorkflowStepConfig{
				{Method: "GET", URL: "http://status.internal/{{service}}", Headers: map[string]string{"X-Env": "prod"}},
			},
		},
		{
			Name:  "no_id",
			Steps: []config.WorkflowStepConfig{{URL: "http://x.internal/"}},
		},
	})

	workflows, err := source.ListWorkflows(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, workflows, 2)

	wf := workflows[0]
	assert.Equal(t, "wf-1", wf.ID)
	assert.Equal(t, "fetch_status", wf.Name)
	assert.JSONEq(t, `{"type":"object","properties":{"service":{"type":"string"}}}`, string(wf.InputSchema))
	require.Len(t, wf.Steps, 1)
	assert.Equal(t, "GET", wf.Steps[0].Method)
	assert.Equal(t, "prod", wf.Steps[0].Headers["X-Env"])

	// missing id falls back to the name; missing schema stays empty for
	// the loader's default to fill in
	assert.Equal(t, "no_id", workflows[1].ID)
	assert.Empty(t, workflows[1].InputSchema)
}

func TestExpandPlaceholders(t *testing.T) {
	got := expandPlaceholders("https://api.test/{{a}}/x?q={{b}}", map[string]string{
		"a": "one", "b": "two",
	})
	assert.Equal(t, "https://api.test/one/x?q=two", got)
}
