package workflow

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Index is a SQLite registry of workflows plus an append-only journal of
// task state transitions. The per-workflow JSON files remain the source
// of truth; the index exists for fast listing and auditing and can be
// rebuilt from the JSON at any time.
type Index struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenIndex opens (or creates) the index database under the store root.
func OpenIndex(storeRoot string) (*Index, error) {
	dbPath := filepath.Join(storeRoot, "index.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure index: %w", err)
	}

	idx := &Index{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return idx, nil
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

func (i *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		description TEXT NOT NULL,
		status TEXT NOT NULL,
		task_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_workflow ON task_events(workflow_id);
	`
	_, err := i.db.Exec(schema)
	return err
}

// RecordWorkflow registers a newly created workflow.
func (i *Index) RecordWorkflow(w *Workflow) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.db.Exec(`
		INSERT INTO workflows (id, description, status, task_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			status = excluded.status,
			task_count = excluded.task_count,
			updated_at = excluded.updated_at
	`, w.ID, w.Description, string(w.Status().Overall), len(w.Tasks), w.CreatedAt, time.Now())
	return err
}

// RecordTransition appends a task state change to the journal.
func (i *Index) RecordTransition(wfID, taskID string, from, to TaskState) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.db.Exec(`
		INSERT INTO task_events (workflow_id, task_id, from_state, to_state, at)
		VALUES (?, ?, ?, ?, ?)
	`, wfID, taskID, string(from), string(to), time.Now())
	return err
}

// UpdateStatus refreshes the cached overall status of a workflow.
func (i *Index) UpdateStatus(wfID string, overall OverallStatus) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	_, err := i.db.Exec(`
		UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?
	`, string(overall), time.Now(), wfID)
	return err
}

// DeleteWorkflow removes a workflow and its journal entries.
func (i *Index) DeleteWorkflow(wfID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, err := i.db.Exec(`DELETE FROM task_events WHERE workflow_id = ?`, wfID); err != nil {
		return err
	}
	_, err := i.db.Exec(`DELETE FROM workflows WHERE id = ?`, wfID)
	return err
}

// IndexedWorkflow is one row of the registry.
type IndexedWorkflow struct {
	ID          string
	Description string
	Status      string
	TaskCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ListWorkflows returns registry rows, oldest first.
func (i *Index) ListWorkflows() ([]IndexedWorkflow, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	rows, err := i.db.Query(`
		SELECT id, description, status, task_count, created_at, updated_at
		FROM workflows ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexedWorkflow
	for rows.Next() {
		var w IndexedWorkflow
		if err := rows.Scan(&w.ID, &w.Description, &w.Status, &w.TaskCount, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// TransitionCount returns how many journal entries a workflow has.
func (i *Index) TransitionCount(wfID string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var n int
	err := i.db.QueryRow(`SELECT COUNT(*) FROM task_events WHERE workflow_id = ?`, wfID).Scan(&n)
	return n, err
}
