package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agentflow/internal/logging"
	"agentflow/internal/types"
)

// Progress is the payload of the executor's push callback.
type Progress struct {
	WorkflowID string
	TaskID     string
	State      TaskState
	Completed  int
	Total      int
}

// ProgressFunc receives progress updates after each state change.
// Callbacks run on the scheduling goroutine and should return promptly.
type ProgressFunc func(Progress)

// Executor walks a workflow's dependency graph: it repeatedly starts
// ready tasks up to the parallelism cap, dispatches them, persists every
// transition through the store, and propagates failures to dependents as
// blocked. One executor advances one workflow at a time (the store
// serializes concurrent advances on the same workflow).
type Executor struct {
	store       *Store
	dispatcher  *Dispatcher
	parallel    int
	taskTimeout time.Duration

	mu         sync.RWMutex
	onProgress ProgressFunc
	current    *Workflow
}

// taskOutcome travels from a task goroutine back to the scheduler.
type taskOutcome struct {
	taskID    string
	result    types.TaskResult
	timedOut  bool
	cancelled bool
}

// NewExecutor creates an executor. parallel < 1 is treated as 1;
// taskTimeout <= 0 disables per-task deadlines.
func NewExecutor(store *Store, dispatcher *Dispatcher, parallel int, taskTimeout time.Duration) *Executor {
	if parallel < 1 {
		parallel = 1
	}
	return &Executor{
		store:       store,
		dispatcher:  dispatcher,
		parallel:    parallel,
		taskTimeout: taskTimeout,
	}
}

// SetProgressCallback installs the optional push callback.
func (e *Executor) SetProgressCallback(fn ProgressFunc) {
	e.mu.Lock()
	e.onProgress = fn
	e.mu.Unlock()
}

// Status returns a snapshot of the workflow currently (or last) run.
func (e *Executor) Status() WorkflowStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return WorkflowStatus{}
	}
	return e.current.Status()
}

// Run executes the workflow until every task is settled for this run,
// the context is cancelled, or the store fails. Running a workflow whose
// tasks are all completed is a no-op. Store failures abort the advance.
func (e *Executor) Run(ctx context.Context, wfID string) (*Workflow, error) {
	w, err := e.store.ResetInFlight(wfID)
	if err != nil {
		return nil, err
	}
	if w.Error != "" {
		return w, fmt.Errorf("workflow %s cannot run: %s", wfID, w.Error)
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("workflow %s is invalid: %w", wfID, err)
	}

	e.setCurrent(w)

	if done(w) {
		logging.Executor("workflow %s already settled, nothing to run", wfID)
		return w, nil
	}

	logging.Executor("workflow %s: starting run (%d tasks, P=%d)", wfID, len(w.Tasks), e.parallel)

	active := make(map[string]bool, e.parallel)
	outcomes := make(chan taskOutcome, len(w.Tasks)+1)
	ctxDone := ctx.Done()

	for {
		// Schedule ready tasks while capacity remains. Ready tasks are
		// taken in insertion order, which is the tie-break.
		if ctx.Err() == nil {
			for _, t := range readyTasks(w) {
				if len(active) >= e.parallel {
					break
				}
				w, err = e.startTask(ctx, w, t.ID, active, outcomes)
				if err != nil {
					return w, err
				}
			}
		}

		if len(active) == 0 {
			if ctx.Err() != nil {
				logging.Executor("workflow %s: cancelled with no tasks in flight", wfID)
				break
			}
			if len(readyTasks(w)) == 0 {
				// Nothing runnable: either all settled or starved by an
				// upstream failure.
				w, err = e.blockStarved(w)
				if err != nil {
					return w, err
				}
				break
			}
			continue
		}

		select {
		case out := <-outcomes:
			delete(active, out.taskID)
			w, err = e.applyOutcome(w, out)
			if err != nil {
				return w, err
			}
		case <-time.After(200 * time.Millisecond):
		case <-ctxDone:
			// In-flight tasks observe the same context and will report
			// back through outcomes; keep draining on the tick. The
			// channel is cleared so a cancelled context does not turn
			// the drain into a spin.
			ctxDone = nil
		}
	}

	st := w.Status()
	logging.Executor("workflow %s: run finished: %s (%d/%d completed)", wfID, st.Overall, st.Completed, st.Total)
	return w, nil
}

// startTask transitions a task to in_progress and launches its goroutine.
func (e *Executor) startTask(ctx context.Context, w *Workflow, taskID string, active map[string]bool, outcomes chan<- taskOutcome) (*Workflow, error) {
	now := time.Now()
	w, err := e.store.UpdateTask(w.ID, taskID, func(t *Task) error {
		t.State = TaskInProgress
		t.StartedAt = &now
		return nil
	})
	if err != nil {
		return w, fmt.Errorf("store error starting task %s: %w", taskID, err)
	}
	e.setCurrent(w)
	e.emit(w, taskID, TaskInProgress)

	task := w.TaskByID(taskID)
	snapshot := *task
	deps := make([]*Task, 0, len(task.DependsOn))
	for _, depID := range task.DependsOn {
		if dep := w.TaskByID(depID); dep != nil {
			depCopy := *dep
			deps = append(deps, &depCopy)
		}
	}

	active[taskID] = true
	go e.runTask(ctx, &snapshot, deps, outcomes)

	logging.ExecutorDebug("workflow %s: task %s started", w.ID, taskID)
	return w, nil
}

// runTask dispatches one task under its deadline and reports the outcome.
func (e *Executor) runTask(ctx context.Context, task *Task, deps []*Task, outcomes chan<- taskOutcome) {
	tctx := ctx
	var cancel context.CancelFunc
	if e.taskTimeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, e.taskTimeout)
		defer cancel()
	}

	result := e.dispatcher.Dispatch(tctx, task, deps)

	out := taskOutcome{taskID: task.ID, result: result}
	if !result.Success {
		switch {
		case ctx.Err() != nil:
			out.cancelled = true
		case errors.Is(tctx.Err(), context.DeadlineExceeded):
			out.timedOut = true
		}
	}
	outcomes <- out
}

// applyOutcome persists a terminal transition and propagates failure.
func (e *Executor) applyOutcome(w *Workflow, out taskOutcome) (*Workflow, error) {
	now := time.Now()

	state := TaskCompleted
	result := out.result
	switch {
	case out.cancelled:
		state = TaskCancelled
		result = types.Failure("cancelled")
	case out.timedOut:
		state = TaskFailed
		result = types.Failure(fmt.Sprintf("timeout: task exceeded %s", e.taskTimeout))
	case !out.result.Success:
		state = TaskFailed
		if result.Error == "" {
			result.Error = "handler failed without error message"
		}
	}

	w, err := e.store.UpdateTask(w.ID, out.taskID, func(t *Task) error {
		t.State = state
		t.Result = &result
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return w, fmt.Errorf("store error finishing task %s: %w", out.taskID, err)
	}
	e.setCurrent(w)
	e.emit(w, out.taskID, state)

	if state == TaskFailed || state == TaskCancelled {
		w, err = e.blockDependents(w, out.taskID)
		if err != nil {
			return w, err
		}
	}
	return w, nil
}

// blockDependents marks the pending transitive dependents of a settled
// non-completed task as blocked. Blocked tasks never start in this run.
func (e *Executor) blockDependents(w *Workflow, rootID string) (*Workflow, error) {
	for {
		blockedOne := false
		for _, t := range w.Tasks {
			if t.State != TaskPending {
				continue
			}
			for _, depID := range t.DependsOn {
				dep := w.TaskByID(depID)
				if dep == nil || !dep.State.Settled() || dep.State == TaskCompleted {
					continue
				}
				var err error
				w, err = e.store.UpdateTask(w.ID, t.ID, func(task *Task) error {
					task.State = TaskBlocked
					return nil
				})
				if err != nil {
					return w, fmt.Errorf("store error blocking task %s: %w", t.ID, err)
				}
				e.setCurrent(w)
				e.emit(w, t.ID, TaskBlocked)
				logging.ExecutorWarn("workflow %s: task %s blocked by %s", w.ID, t.ID, depID)
				blockedOne = true
				break
			}
		}
		if !blockedOne {
			return w, nil
		}
	}
}

// blockStarved handles the empty-ready deadlock at loop exit: any task
// still pending has an unsatisfiable dependency.
func (e *Executor) blockStarved(w *Workflow) (*Workflow, error) {
	for _, t := range w.Tasks {
		if t.State != TaskPending {
			continue
		}
		var err error
		w, err = e.store.UpdateTask(w.ID, t.ID, func(task *Task) error {
			task.State = TaskBlocked
			return nil
		})
		if err != nil {
			return w, fmt.Errorf("store error blocking task %s: %w", t.ID, err)
		}
		e.setCurrent(w)
		e.emit(w, t.ID, TaskBlocked)
	}
	return w, nil
}

// readyTasks returns pending tasks whose dependencies are all completed,
// in insertion order.
func readyTasks(w *Workflow) []*Task {
	var ready []*Task
	for _, t := range w.Tasks {
		if t.State != TaskPending {
			continue
		}
		ok := true
		for _, depID := range t.DependsOn {
			dep := w.TaskByID(depID)
			if dep == nil || dep.State != TaskCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// done reports whether every task is settled for this run.
func done(w *Workflow) bool {
	for _, t := range w.Tasks {
		if !t.State.Settled() {
			return false
		}
	}
	return true
}

func (e *Executor) setCurrent(w *Workflow) {
	e.mu.Lock()
	e.current = w
	e.mu.Unlock()
}

func (e *Executor) emit(w *Workflow, taskID string, state TaskState) {
	e.mu.RLock()
	fn := e.onProgress
	e.mu.RUnlock()
	if fn == nil {
		return
	}

	st := w.Status()
	fn(Progress{
		WorkflowID: w.ID,
		TaskID:     taskID,
		State:      state,
		Completed:  st.Completed,
		Total:      st.Total,
	})
}
