package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"agentflow/internal/logging"

	"github.com/google/renameio/v2"
)

// Store persists workflows as one directory per workflow under root,
// each holding a workflow.json. Writes go through a temp-file rename so
// a crash between task boundaries leaves the previous consistent
// snapshot on disk. All mutation flows through UpdateTask, serialized
// per workflow.
type Store struct {
	root  string
	index *Index

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a store rooted at root. The root directory is
// created on demand. index may be nil.
func NewStore(root string, index *Index) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store root required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{
		root:  root,
		index: index,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string {
	return s.root
}

// lockFor returns the per-workflow mutex, creating it on first use.
// This is what serializes concurrent advances on one workflow.
func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *Store) dir(id string) string {
	return filepath.Join(s.root, id)
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir(id), "workflow.json")
}

// Create persists a new workflow and returns its id.
func (s *Store) Create(w *Workflow) (string, error) {
	if w.ID == "" {
		return "", fmt.Errorf("workflow id required")
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	w.UpdatedAt = w.CreatedAt

	l := s.lockFor(w.ID)
	l.Lock()
	defer l.Unlock()

	if _, err := os.Stat(s.path(w.ID)); err == nil {
		return "", fmt.Errorf("workflow %s already exists", w.ID)
	}

	if err := s.save(w); err != nil {
		return "", err
	}

	if s.index != nil {
		if err := s.index.RecordWorkflow(w); err != nil {
			logging.StoreError("index record failed for %s: %v", w.ID, err)
		}
	}

	logging.Store("created workflow %s (%d tasks)", w.ID, len(w.Tasks))
	return w.ID, nil
}

// Load reads a workflow by id.
func (s *Store) Load(id string) (*Workflow, error) {
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()
	return s.load(id)
}

func (s *Store) load(id string) (*Workflow, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workflow %s not found", id)
		}
		return nil, fmt.Errorf("failed to read workflow %s: %w", id, err)
	}

	var w Workflow
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse workflow %s: %w", id, err)
	}
	return &w, nil
}

// save writes the workflow snapshot atomically.
func (s *Store) save(w *Workflow) error {
	if err := os.MkdirAll(s.dir(w.ID), 0755); err != nil {
		return fmt.Errorf("failed to create workflow dir: %w", err)
	}

	w.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	if err := renameio.WriteFile(s.path(w.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write workflow: %w", err)
	}
	return nil
}

// UpdateTask applies delta to one task and persists the whole workflow
// atomically, so a state transition and its result land together or not
// at all. Terminal states never regress.
func (s *Store) UpdateTask(wfID, taskID string, delta func(*Task) error) (*Workflow, error) {
	l := s.lockFor(wfID)
	l.Lock()
	defer l.Unlock()

	w, err := s.load(wfID)
	if err != nil {
		return nil, err
	}

	task := w.TaskByID(taskID)
	if task == nil {
		return nil, fmt.Errorf("task %s not found in workflow %s", taskID, wfID)
	}

	prev := task.State
	if err := delta(task); err != nil {
		return nil, err
	}

	if prev.Terminal() && task.State != prev {
		return nil, fmt.Errorf("task %s is %s; refusing transition to %s", taskID, prev, task.State)
	}
	if task.State.Terminal() && task.Result == nil {
		return nil, fmt.Errorf("task %s entered %s without a result", taskID, task.State)
	}
	if task.State == TaskFailed && (task.Result.Success || task.Result.Error == "") {
		return nil, fmt.Errorf("task %s failed without an error message", taskID)
	}

	if err := s.save(w); err != nil {
		return nil, err
	}

	if s.index != nil && task.State != prev {
		if err := s.index.RecordTransition(wfID, taskID, prev, task.State); err != nil {
			logging.StoreError("index transition failed for %s/%s: %v", wfID, taskID, err)
		}
		if err := s.index.UpdateStatus(wfID, w.Status().Overall); err != nil {
			logging.StoreError("index status failed for %s: %v", wfID, err)
		}
	}

	logging.StoreDebug("workflow %s task %s: %s -> %s", wfID, taskID, prev, task.State)
	return w, nil
}

// SaveError records a planning failure on the workflow.
func (s *Store) SaveError(wfID, msg string) error {
	l := s.lockFor(wfID)
	l.Lock()
	defer l.Unlock()

	w, err := s.load(wfID)
	if err != nil {
		return err
	}
	w.Error = msg
	return s.save(w)
}

// ResetInFlight rewinds tasks left in_progress by a crashed run back to
// pending. Called before execution resumes.
func (s *Store) ResetInFlight(wfID string) (*Workflow, error) {
	l := s.lockFor(wfID)
	l.Lock()
	defer l.Unlock()

	w, err := s.load(wfID)
	if err != nil {
		return nil, err
	}

	dirty := false
	for _, t := range w.Tasks {
		if t.State == TaskInProgress {
			t.State = TaskPending
			t.StartedAt = nil
			dirty = true
		}
	}

	if dirty {
		if err := s.save(w); err != nil {
			return nil, err
		}
		logging.Store("workflow %s: reset in-flight tasks to pending", wfID)
	}
	return w, nil
}

// Status derives the counts view for a workflow.
func (s *Store) Status(wfID string) (WorkflowStatus, error) {
	w, err := s.Load(wfID)
	if err != nil {
		return WorkflowStatus{}, err
	}
	return w.Status(), nil
}

// List returns all persisted workflow ids, oldest first.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read store root: %w", err)
	}

	type entry struct {
		id      string
		created time.Time
	}
	var found []entry
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		w, err := s.Load(e.Name())
		if err != nil {
			continue
		}
		found = append(found, entry{id: w.ID, created: w.CreatedAt})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].created.Before(found[j].created)
	})

	ids := make([]string, len(found))
	for i, e := range found {
		ids[i] = e.id
	}
	return ids, nil
}

// Delete removes a workflow directory.
func (s *Store) Delete(wfID string) error {
	l := s.lockFor(wfID)
	l.Lock()
	defer l.Unlock()

	if err := os.RemoveAll(s.dir(wfID)); err != nil {
		return fmt.Errorf("failed to delete workflow %s: %w", wfID, err)
	}
	if s.index != nil {
		if err := s.index.DeleteWorkflow(wfID); err != nil {
			logging.StoreError("index delete failed for %s: %v", wfID, err)
		}
	}
	return nil
}
