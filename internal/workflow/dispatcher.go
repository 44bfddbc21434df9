package workflow

import (
	"context"
	"fmt"

	"agentflow/internal/logging"
	"agentflow/internal/types"
)

// Dispatcher routes a task to its handler by type and normalizes the
// handler output into a TaskResult. Handlers never retry and never
// mutate store state; they see an immutable snapshot of the task and
// its completed dependencies.
type Dispatcher struct {
	llm          types.LLMClient
	web          types.WebBrowser
	vision       types.VisionAnalyzer
	files        types.FileStore
	documentsDir string
}

// NewDispatcher wires the collaborators a dispatcher needs.
func NewDispatcher(llm types.LLMClient, web types.WebBrowser, vision types.VisionAnalyzer, files types.FileStore, documentsDir string) *Dispatcher {
	return &Dispatcher{
		llm:          llm,
		web:          web,
		vision:       vision,
		files:        files,
		documentsDir: documentsDir,
	}
}

// Dispatch executes one task. deps are snapshots of the task's completed
// dependencies, newest last; handlers may mine their artifacts.
func (d *Dispatcher) Dispatch(ctx context.Context, task *Task, deps []*Task) types.TaskResult {
	logging.Dispatch("task %s: dispatching type=%s", task.ID, task.Type)

	switch task.Type {
	case TypeFileCreation:
		return d.handleFileCreation(ctx, task, deps)
	case TypeWebBrowsing:
		return d.handleWebBrowsing(ctx, task)
	case TypeImageAnalysis:
		return d.handleImageAnalysis(ctx, task)
	case TypeGeneral:
		return d.handleGeneral(ctx, task)
	default:
		return types.Failure(fmt.Sprintf("no handler for task type %q", task.Type))
	}
}
