// ABOUTME: Workflow tool loader: user-defined sequences of HTTP request steps
// ABOUTME: Each workflow becomes one tool; steps run in order, last response wins

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Bakhitov/crafty-gateway/internal/config"
)

// HTTPStep is one request in a workflow. BodyTemplate may reference
// tool arguments as {{name}} placeholders; URL may too.
type HTTPStep struct {
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Headers      map[string]string `json:"headers,omitempty"`
	BodyTemplate string            `json:"bodyTemplate,omitempty"`
}

// Workflow is a stored sequence of HTTP steps exposed as a single tool
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
	Steps       []HTTPStep      `json:"steps"`
}

// WorkflowSource provides the workflows available to a user
type WorkflowSource interface {
	ListWorkflows(ctx context.Context, userID string) ([]Workflow, error)
}

// StaticWorkflowSource serves a fixed workflow list to every user
type StaticWorkflowSource []Workflow

// ListWorkflows implements WorkflowSource
func (s StaticWorkflowSource) ListWorkflows(_ context.Context, _ string) ([]Workflow, error) {
	return s, nil
}

// WorkflowsFromConfig builds a static workflow source from configured
// workflow definitions. A workflow without an id uses its name.
func WorkflowsFromConfig(cfgs []config.WorkflowConfig) StaticWorkflowSource {
	source := make(StaticWorkflowSource, 0, len(cfgs))
	for _, wc := range cfgs {
		id := wc.ID
		if id == "" {
			id = wc.Name
		}
		steps := make([]HTTPStep, 0, len(wc.Steps))
		for _, sc := range wc.Steps {
			steps = append(steps, HTTPStep{
				Method:       sc.Method,
				URL:          sc.URL,
				Headers:      sc.Headers,
				BodyTemplate: sc.BodyTemplate,
			})
		}
		wf := Workflow{
			ID:          id,
			Name:        wc.Name,
			Description: wc.Description,
			Steps:       steps,
		}
		if wc.InputSchema != "" {
			wf.InputSchema = json.RawMessage(wc.InputSchema)
		}
		source = append(source, wf)
	}
	return source
}

const workflowStepTimeout = 30 * time.Second

type workflowLoader struct {
	source WorkflowSource
	client *http.Client
	logger *slog.Logger
}

func newWorkflowLoader(source WorkflowSource, logger *slog.Logger) *workflowLoader {
	return &workflowLoader{
		source: source,
		client: &http.Client{Timeout: workflowStepTimeout},
		logger: logger,
	}
}

// Load converts the user's workflows into tools. A failing source
// contributes zero tools (fail open).
func (l *workflowLoader) Load(ctx context.Context, userID string) []Tool {
	if l.source == nil {
		return nil
	}

	workflows, err := l.source.ListWorkflows(ctx, userID)
	if err != nil {
		l.logger.Warn("workflow source unavailable, skipping", "error", err)
		return nil
	}

	tools := make([]Tool, 0, len(workflows))
	for _, wf := range workflows {
		wf := wf
		schema := wf.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object","properties":{}}`)
		}
		tools = append(tools, Tool{
			Name:        wf.Name,
			Source:      SourceWorkflow,
			WorkflowID:  wf.ID,
			Description: wf.Description,
			InputSchema: schema,
			Execute: func(callCtx context.Context, args json.RawMessage) (string, error) {
				return l.run(callCtx, wf, args)
			},
		})
	}
	return tools
}

// run executes the workflow's steps sequentially and returns the body
// of the final response. Any step failure aborts the workflow.
func (l *workflowLoader) run(ctx context.Context, wf Workflow, args json.RawMessage) (string, error) {
	values := map[string]string{}
	if len(args) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(args, &raw); err != nil {
			return "", fmt.Errorf("decoding workflow arguments: %w", err)
		}
		for k, v := range raw {
			values[k] = fmt.Sprintf("%v", v)
		}
	}

	var lastBody string
	for i, step := range wf.Steps {
		body, err := l.runStep(ctx, step, values)
		if err != nil {
			return "", fmt.Errorf("workflow %s step %d: %w", wf.Name, i+1, err)
		}
		lastBody = body
		// Later steps can reference the previous step's output
		values["previous"] = body
	}
	return lastBody, nil
}

func (l *workflowLoader) runStep(ctx context.Context, step HTTPStep, values map[string]string) (string, error) {
	url := expandPlaceholders(step.URL, values)

	var bodyReader io.Reader
	if step.BodyTemplate != "" {
		bodyReader = strings.NewReader(expandPlaceholders(step.BodyTemplate, values))
	}

	method := step.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	for k, v := range step.Headers {
		req.Header.Set(k, v)
	}
	if step.BodyTemplate != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body))
	}
	return string(body), nil
}

// expandPlaceholders replaces {{name}} tokens with argument values
func expandPlaceholders(template string, values map[string]string) string {
	result := template
	for k, v := range values {
		result = strings.ReplaceAll(result, "{{"+k+"}}", v)
	}
	return result
}
