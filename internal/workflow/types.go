// Package workflow implements the persisted dependency graph of typed
// tasks: the data model, the JSON store with its SQLite index, the
// LLM-backed planner, the ready-set executor, the typed dispatcher, and
// the result aggregator.
package workflow

import (
	"fmt"
	"time"

	"agentflow/internal/types"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskPending    TaskState = "pending"
	TaskInProgress TaskState = "in_progress"
	TaskBlocked    TaskState = "blocked"
	TaskCompleted  TaskState = "completed"
	TaskFailed     TaskState = "failed"
	TaskCancelled  TaskState = "cancelled"
)

// Terminal reports whether the state is terminal in the invariant sense:
// the task carries a result and never leaves the state. Blocked is final
// for a run but carries no result and may unblock on a future run.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Settled reports whether the executor is done with the task for this
// run (terminal or blocked).
func (s TaskState) Settled() bool {
	return s.Terminal() || s == TaskBlocked
}

// TaskType selects the handler a task is dispatched to.
type TaskType string

const (
	TypeFileCreation  TaskType = "file_creation"
	TypeWebBrowsing   TaskType = "web_browsing"
	TypeImageAnalysis TaskType = "image_analysis"
	TypeGeneral       TaskType = "general"
)

// ValidTaskType reports whether t is a known handler type.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TypeFileCreation, TypeWebBrowsing, TypeImageAnalysis, TypeGeneral:
		return true
	}
	return false
}

// Task is one unit of work inside a workflow.
type Task struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Type        TaskType          `json:"type"`
	DependsOn   []string          `json:"depends_on,omitempty"`
	State       TaskState         `json:"state"`
	Parameters  map[string]string `json:"parameters,omitempty"`

	// Result is present iff State is terminal.
	Result *types.TaskResult `json:"result,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Workflow is a dependency graph of tasks created from one request.
// Tasks keeps the planner's presentation order; execution order is
// computed from DependsOn.
type Workflow struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Tasks       []*Task   `json:"tasks"`

	// Error records a planning failure; such a workflow never executes.
	Error string `json:"error,omitempty"`
}

// OverallStatus is the derived status of a workflow.
type OverallStatus string

const (
	StatusPending   OverallStatus = "pending"
	StatusRunning   OverallStatus = "running"
	StatusCompleted OverallStatus = "completed"
	StatusFailed    OverallStatus = "failed"
)

// WorkflowStatus is the derived counts view of a workflow.
type WorkflowStatus struct {
	Total       int           `json:"total"`
	Pending     int           `json:"pending"`
	InProgress  int           `json:"in_progress"`
	Blocked     int           `json:"blocked"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Cancelled   int           `json:"cancelled"`
	ProgressPct int           `json:"progress_pct"`
	Overall     OverallStatus `json:"overall"`
}

// TaskByID returns the task with the given id, or nil.
func (w *Workflow) TaskByID(id string) *Task {
	for _, t := range w.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Status derives the counts view. Completed means every task completed;
// failed means at least one failure with nothing still running; running
// means anything in flight; otherwise pending.
func (w *Workflow) Status() WorkflowStatus {
	st := WorkflowStatus{Total: len(w.Tasks)}

	for _, t := range w.Tasks {
		switch t.State {
		case TaskPending:
			st.Pending++
		case TaskInProgress:
			st.InProgress++
		case TaskBlocked:
			st.Blocked++
		case TaskCompleted:
			st.Completed++
		case TaskFailed:
			st.Failed++
		case TaskCancelled:
			st.Cancelled++
		}
	}

	if st.Total > 0 {
		st.ProgressPct = st.Completed * 100 / st.Total
	}

	switch {
	case st.Total > 0 && st.Completed == st.Total:
		st.Overall = StatusCompleted
	case st.Failed > 0 && st.InProgress == 0:
		st.Overall = StatusFailed
	case st.InProgress > 0:
		st.Overall = StatusRunning
	default:
		st.Overall = StatusPending
	}

	return st
}

// Validate checks structural invariants: dependency closure (every
// dependency id names a task in the workflow) and acyclicity.
func (w *Workflow) Validate() error {
	ids := make(map[string]bool, len(w.Tasks))
	for _, t := range w.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task with empty id")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		ids[t.ID] = true
	}

	for _, t := range w.Tasks {
		for _, dep := range t.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("task %q depends on unknown task %q", t.ID, dep)
			}
			if dep == t.ID {
				return fmt.Errorf("task %q depends on itself", t.ID)
			}
		}
	}

	if cycle := w.findCycle(); len(cycle) > 0 {
		return fmt.Errorf("dependency cycle: %v", cycle)
	}

	return nil
}

// findCycle runs a coloring DFS over the dependency edges.
func (w *Workflow) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(w.Tasks))
	deps := make(map[string][]string, len(w.Tasks))
	for _, t := range w.Tasks {
		deps[t.ID] = t.DependsOn
	}

	var cycle []string
	var visit func(id string, path []string) bool
	visit = func(id string, path []string) bool {
		color[id] = gray
		path = append(path, id)
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				cycle = append(path, dep)
				return true
			case white:
				if visit(dep, path) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, t := range w.Tasks {
		if color[t.ID] == white {
			if visit(t.ID, nil) {
				return cycle
			}
		}
	}
	return nil
}
