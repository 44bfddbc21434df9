package workflow

import "fmt"

// reserved per-task artifact key that is never surfaced to callers.
// Opaque nested blobs stay inside the store.
const reservedArtifactKey = "full_result"

// RunResult is the aggregated outcome of a workflow run.
type RunResult struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Artifacts  map[string]any `json:"artifacts,omitempty"`
	WorkflowID string         `json:"workflow_id"`
}

// Aggregate folds a finished workflow into a single result. Success
// means nothing failed and at least one task completed. Artifacts from
// completed tasks are merged under "<task_type>_<key>".
func Aggregate(w *Workflow) RunResult {
	st := w.Status()

	res := RunResult{
		WorkflowID: w.ID,
		Success:    st.Failed == 0 && st.Completed > 0,
		Artifacts:  make(map[string]any),
	}

	for _, t := range w.Tasks {
		if t.State != TaskCompleted || t.Result == nil {
			continue
		}
		for key, val := range t.Result.Artifacts {
			if key == reservedArtifactKey {
				continue
			}
			res.Artifacts[fmt.Sprintf("%s_%s", t.Type, key)] = val
		}
	}

	switch {
	case st.Total == 0:
		res.Message = "workflow has no tasks"
	case st.Completed == st.Total:
		res.Message = fmt.Sprintf("all %d tasks completed", st.Total)
	case st.Completed == 0 && st.Failed > 0:
		res.Message = fmt.Sprintf("all tasks failed (%d failed, %d blocked)", st.Failed, st.Blocked)
	default:
		res.Message = fmt.Sprintf("partial completion: %d completed, %d failed, %d blocked, %d cancelled of %d",
			st.Completed, st.Failed, st.Blocked, st.Cancelled, st.Total)
	}

	return res
}
