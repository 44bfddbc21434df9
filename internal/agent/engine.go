// Package agent routes user requests to the execution path their shape
// calls for: single-shot handlers for simple requests, the hybrid
// runner for web-to-file, and the planner plus executor for everything
// multi-step.
package agent

import (
	"context"
	"fmt"

	"agentflow/internal/classify"
	"agentflow/internal/hybrid"
	"agentflow/internal/logging"
	"agentflow/internal/types"
	"agentflow/internal/workflow"
)

// Outcome is the user-visible result of one request.
type Outcome struct {
	Shape      classify.Shape `json:"shape"`
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Artifacts  map[string]any `json:"artifacts,omitempty"`
	WorkflowID string         `json:"workflow_id,omitempty"`
}

// Engine owns the request lifecycle from classification to result.
type Engine struct {
	classifier *classify.Classifier
	dispatcher *workflow.Dispatcher
	hybrid     *hybrid.Runner
	planner    *workflow.Planner
	store      *workflow.Store
	executor   *workflow.Executor
}

// NewEngine wires an engine from its collaborators.
func NewEngine(
	classifier *classify.Classifier,
	dispatcher *workflow.Dispatcher,
	hybridRunner *hybrid.Runner,
	planner *workflow.Planner,
	store *workflow.Store,
	executor *workflow.Executor,
) *Engine {
	return &Engine{
		classifier: classifier,
		dispatcher: dispatcher,
		hybrid:     hybridRunner,
		planner:    planner,
		store:      store,
		executor:   executor,
	}
}

// Run classifies the request and executes it along the matching path.
// An error return means infrastructure failed (planning, persistence);
// handler failures come back as an unsuccessful Outcome.
func (e *Engine) Run(ctx context.Context, request string) (*Outcome, error) {
	shape := e.classifier.Classify(request)
	logging.Boot("request classified as %s: %s", shape, request)

	switch shape {
	case classify.ShapeDirectFile:
		// No fallback: there is no cheaper path than a single LLM call.
		out := e.runSingleShot(ctx, request, workflow.TypeFileCreation)
		out.Shape = shape
		return out, nil

	case classify.ShapeWebOnly:
		out := e.runSingleShot(ctx, request, workflow.TypeWebBrowsing)
		if !out.Success {
			return e.webOnlyFallback(ctx, request, out)
		}
		out.Shape = shape
		return out, nil

	case classify.ShapeHybrid:
		out := e.runHybrid(ctx, request)
		out.Shape = shape
		return out, nil

	default:
		out, err := e.runComplex(ctx, request)
		if err != nil {
			return nil, err
		}
		out.Shape = classify.ShapeComplex
		return out, nil
	}
}

// runSingleShot executes one synthetic task through the dispatcher.
func (e *Engine) runSingleShot(ctx context.Context, request string, taskType workflow.TaskType) *Outcome {
	task := &workflow.Task{
		ID:          "single_shot",
		Description: request,
		Type:        taskType,
	}
	result := e.dispatcher.Dispatch(ctx, task, nil)
	return outcomeFromTask(result, taskType)
}

// runHybrid runs the hybrid path with its pinned fallback: when the
// hybrid run fails, retry as a direct file creation from the original
// request. The fallback never browses again.
func (e *Engine) runHybrid(ctx context.Context, request string) *Outcome {
	result := e.hybrid.Run(ctx, request)
	if result.Success {
		return outcomeFromHybrid(result)
	}

	logging.Boot("hybrid path failed (%s), falling back to direct file creation", result.Error)
	out := e.runSingleShot(ctx, request, workflow.TypeFileCreation)
	if !out.Success {
		out.Message = fmt.Sprintf("hybrid failed (%s); file fallback failed (%s)", result.Error, out.Message)
	}
	return out
}

// webOnlyFallback recovers a failed browse. With file signals present
// the request still has a deliverable the LLM can produce without the
// web, so it falls to direct file creation. Multi-step requests go to
// the planner. The browser is never re-invoked.
func (e *Engine) webOnlyFallback(ctx context.Context, request string, failed *Outcome) (*Outcome, error) {
	switch {
	case e.classifier.HasFileSignal(request):
		logging.Boot("web path failed (%s), falling back to file creation", failed.Message)
		out := e.runSingleShot(ctx, request, workflow.TypeFileCreation)
		out.Shape = classify.ShapeWebOnly
		return out, nil

	case e.classifier.IsMultiStep(request):
		logging.Boot("web path failed (%s), routing to planner", failed.Message)
		out, err := e.runComplex(ctx, request)
		if err != nil {
			return nil, err
		}
		out.Shape = classify.ShapeWebOnly
		return out, nil

	default:
		failed.Shape = classify.ShapeWebOnly
		return failed, nil
	}
}

// runComplex plans a workflow, executes it, and aggregates the result.
func (e *Engine) runComplex(ctx context.Context, request string) (*Outcome, error) {
	wf, err := e.planner.Plan(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("planning failed: %w", err)
	}
	logging.Boot("planned workflow %s with %d tasks", wf.ID, len(wf.Tasks))

	final, err := e.executor.Run(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}

	agg := workflow.Aggregate(final)
	return &Outcome{
		Success:    agg.Success,
		Message:    agg.Message,
		Artifacts:  agg.Artifacts,
		WorkflowID: agg.WorkflowID,
	}, nil
}

// Plan builds and persists a workflow without executing it.
func (e *Engine) Plan(ctx context.Context, request string) (*workflow.Workflow, error) {
	return e.planner.Plan(ctx, request)
}

// Resume executes a previously planned or interrupted workflow.
func (e *Engine) Resume(ctx context.Context, wfID string) (*Outcome, error) {
	final, err := e.executor.Run(ctx, wfID)
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	agg := workflow.Aggregate(final)
	return &Outcome{
		Shape:      classify.ShapeComplex,
		Success:    agg.Success,
		Message:    agg.Message,
		Artifacts:  agg.Artifacts,
		WorkflowID: agg.WorkflowID,
	}, nil
}

// Status reports the stored state of a workflow.
func (e *Engine) Status(wfID string) (workflow.WorkflowStatus, error) {
	return e.store.Status(wfID)
}

// List returns stored workflow IDs, oldest first.
func (e *Engine) List() ([]string, error) {
	return e.store.List()
}

func outcomeFromTask(result types.TaskResult, taskType workflow.TaskType) *Outcome {
	out := &Outcome{Success: result.Success, Artifacts: result.Artifacts}
	if result.Success {
		out.Message = fmt.Sprintf("%s completed", taskType)
	} else {
		out.Message = result.Error
	}
	return out
}

func outcomeFromHybrid(result types.TaskResult) *Outcome {
	out := &Outcome{Success: result.Success, Artifacts: result.Artifacts}
	if result.Success {
		out.Message = "document created from web content"
	} else {
		out.Message = result.Error
	}
	return out
}
