package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"agentflow/internal/logging"
	"agentflow/internal/logic"
	"agentflow/internal/types"

	"github.com/google/uuid"
)

// Planner decomposes a request into a workflow of typed tasks with
// dependency edges. The LLM proposes steps as (description, type,
// depends_on step numbers); the planner assigns ids, translates step
// numbers to id references, and validates the graph before anything
// executes. One repair round-trip is attempted on an invalid plan.
type Planner struct {
	llm   types.LLMClient
	store *Store
}

// NewPlanner creates a planner writing through the given store.
func NewPlanner(llm types.LLMClient, store *Store) *Planner {
	return &Planner{llm: llm, store: store}
}

// rawPlan is the JSON shape the LLM is asked to produce.
type rawPlan struct {
	Tasks []rawTask `json:"tasks"`
}

type rawTask struct {
	Description string `json:"description"`
	Type        string `json:"type"`
	DependsOn   []int  `json:"depends_on"` // 1-based step numbers
}

const planPrompt = `You are a task planner. Decompose the request below into discrete steps.

Request: %s

Respond with ONLY a JSON object, no prose, in exactly this shape:
{
  "tasks": [
    {"description": "...", "type": "web_browsing", "depends_on": []},
    {"description": "...", "type": "file_creation", "depends_on": [1]}
  ]
}

Rules:
- "type" must be one of: file_creation, web_browsing, image_analysis, general.
- "depends_on" lists the 1-based step numbers this step needs finished first.
- Steps must not depend on themselves or on later steps.
- Keep the plan minimal: only steps the request actually needs.`

const repairPrompt = `Your previous plan was invalid. Fix it and respond with ONLY the corrected JSON object in the same shape.

Request: %s

Previous plan:
%s

Problems found:
%s

Remember: "type" must be one of file_creation, web_browsing, image_analysis, general; "depends_on" uses 1-based step numbers of earlier steps only.`

// Plan produces and persists a workflow for the request. An unrepairable
// plan is persisted with its error recorded and returned as a failure so
// it never executes.
func (p *Planner) Plan(ctx context.Context, request string) (*Workflow, error) {
	logging.Planner("planning request: %s", limitString(request, 120))

	raw, rawJSON, err := p.propose(ctx, fmt.Sprintf(planPrompt, request))
	if err != nil {
		return nil, fmt.Errorf("planning error: %w", err)
	}

	w := p.buildWorkflow(request, raw)
	issues, err := validateWorkflow(w)
	if err != nil {
		return nil, fmt.Errorf("planning error: %w", err)
	}

	if len(issues) > 0 {
		logging.Planner("plan for %s invalid (%d issues), attempting repair", w.ID, len(issues))
		repaired, _, rerr := p.propose(ctx, fmt.Sprintf(repairPrompt, request, rawJSON, formatIssues(issues)))
		if rerr == nil {
			rw := p.buildWorkflow(request, repaired)
			rw.ID = w.ID
			reissues, verr := validateWorkflow(rw)
			if verr == nil && len(reissues) == 0 {
				w, issues = rw, nil
			} else if verr == nil {
				w, issues = rw, reissues
			}
		}
	}

	if len(issues) > 0 {
		w.Error = "planning error: invalid plan: " + formatIssues(issues)
		if _, err := p.store.Create(w); err != nil {
			return nil, fmt.Errorf("planning error: %w", err)
		}
		logging.PlannerError("workflow %s failed validation: %s", w.ID, w.Error)
		return w, fmt.Errorf("%s", w.Error)
	}

	if _, err := p.store.Create(w); err != nil {
		return nil, fmt.Errorf("planning error: %w", err)
	}

	logging.Planner("workflow %s planned: %d tasks", w.ID, len(w.Tasks))
	return w, nil
}

// propose runs one LLM round-trip and parses the raw plan.
func (p *Planner) propose(ctx context.Context, prompt string) (*rawPlan, string, error) {
	resp, err := p.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("LLM planning failed: %w", err)
	}

	cleaned := cleanJSONResponse(resp)
	var raw rawPlan
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, "", fmt.Errorf("failed to parse plan JSON: %w", err)
	}
	return &raw, cleaned, nil
}

// buildWorkflow assigns ids and translates step numbers to id references.
// Out-of-range and self references map to a synthetic unknown id so the
// validator reports them as dangling.
func (p *Planner) buildWorkflow(request string, raw *rawPlan) *Workflow {
	w := &Workflow{
		ID:          uuid.NewString(),
		Description: request,
		CreatedAt:   time.Now(),
	}

	ids := make([]string, len(raw.Tasks))
	for i := range raw.Tasks {
		ids[i] = fmt.Sprintf("task_%d_%s", i+1, shortID())
	}

	for i, rt := range raw.Tasks {
		task := &Task{
			ID:          ids[i],
			Description: strings.TrimSpace(rt.Description),
			Type:        normalizeType(rt.Type),
			State:       TaskPending,
		}
		for _, step := range rt.DependsOn {
			idx := step - 1
			if idx < 0 || idx >= len(ids) || idx == i {
				task.DependsOn = append(task.DependsOn, fmt.Sprintf("step_%d", step))
				continue
			}
			task.DependsOn = append(task.DependsOn, ids[idx])
		}
		w.Tasks = append(w.Tasks, task)
	}

	return w
}

// validateWorkflow runs the datalog rules over the plan.
func validateWorkflow(w *Workflow) ([]logic.Issue, error) {
	tasks := make([]logic.PlanTask, len(w.Tasks))
	for i, t := range w.Tasks {
		tasks[i] = logic.PlanTask{
			ID:        t.ID,
			Type:      string(t.Type),
			DependsOn: t.DependsOn,
		}
	}
	return logic.ValidatePlan(tasks)
}

func formatIssues(issues []logic.Issue) string {
	parts := make([]string, len(issues))
	for i, iss := range issues {
		parts[i] = iss.String()
	}
	return strings.Join(parts, "; ")
}

// normalizeType lowercases and underscores a raw type string. Unknown
// values are kept as-is for the validator to flag.
func normalizeType(t string) TaskType {
	norm := TaskType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), " ", "_"))
	switch norm {
	case "web_search", "browsing", "web":
		return TypeWebBrowsing
	case "file", "file_write", "document_creation":
		return TypeFileCreation
	case "image", "vision":
		return TypeImageAnalysis
	case "":
		return TypeGeneral
	}
	return norm
}

func shortID() string {
	return uuid.NewString()[:8]
}

// cleanJSONResponse strips markdown code fences from an LLM response.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)

	if strings.HasPrefix(resp, "```") {
		if idx := strings.Index(resp, "\n"); idx >= 0 {
			resp = resp[idx+1:]
		}
		if idx := strings.LastIndex(resp, "```"); idx >= 0 {
			resp = resp[:idx]
		}
		return strings.TrimSpace(resp)
	}

	// Some models wrap JSON in prose; take the outermost object.
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start >= 0 && end > start {
		return resp[start : end+1]
	}
	return resp
}

func limitString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
