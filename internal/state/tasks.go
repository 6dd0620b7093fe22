package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/forgeworks/squadron/pkg/models"
)

// SaveTask upserts a task snapshot and replaces its artifact rows.
// Called by the orchestrator on every state transition.
func (db *DB) SaveTask(task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	contextJSON, err := json.Marshal(task.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	checksJSON, err := json.Marshal(task.CheckResults)
	if err != nil {
		return fmt.Errorf("marshal check results: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var completedAt interface{}
	if task.CompletedAt != nil {
		completedAt = task.CompletedAt.UTC()
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (id, description, workflow, state, priority, progress, current_step,
			iteration, max_iterations, quality_gate_enabled, context_json,
			check_results_json, error, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			progress = excluded.progress,
			current_step = excluded.current_step,
			iteration = excluded.iteration,
			check_results_json = excluded.check_results_json,
			error = excluded.error,
			updated_at = excluded.updated_at,
			completed_at = excluded.completed_at
	`, task.ID, task.Description, task.Workflow, string(task.State), task.Priority, task.Progress,
		task.CurrentStep, task.Iteration, task.MaxIterations, boolToInt(task.QualityGateEnabled),
		string(contextJSON), string(checksJSON), task.Error,
		task.CreatedAt.UTC(), task.UpdatedAt.UTC(), completedAt)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM artifacts WHERE task_id = ?", task.ID); err != nil {
		return fmt.Errorf("clear artifacts: %w", err)
	}
	for seq, a := range task.Artifacts {
		metaJSON, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("marshal artifact metadata: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO artifacts (task_id, seq, type, artifact_id, content, step, squad, agent, metadata_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, task.ID, seq, a.Type, a.ID, a.Content, a.Step, a.Squad, a.Agent, string(metaJSON), a.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert artifact %s: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// GetTask loads a task snapshot with its artifacts.
func (db *DB) GetTask(id string) (*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, description, workflow, state, priority, progress, current_step,
			iteration, max_iterations, quality_gate_enabled, context_json,
			check_results_json, error, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.conn.Query(`
		SELECT type, artifact_id, content, step, squad, agent, metadata_json, created_at
		FROM artifacts WHERE task_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Artifact
		var metaJSON string
		if err := rows.Scan(&a.Type, &a.ID, &a.Content, &a.Step, &a.Squad, &a.Agent, &metaJSON, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &a.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal artifact metadata: %w", err)
			}
		}
		task.Artifacts = append(task.Artifacts, a)
	}
	return task, rows.Err()
}

// ListTasks returns recent task snapshots without artifacts, newest first.
func (db *DB) ListTasks(limit int) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(`
		SELECT id, description, workflow, state, priority, progress, current_step,
			iteration, max_iterations, quality_gate_enabled, context_json,
			check_results_json, error, created_at, updated_at, completed_at
		FROM tasks ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		task        models.Task
		state       string
		gateEnabled int
		currentStep sql.NullString
		contextJSON sql.NullString
		checksJSON  sql.NullString
		errText     sql.NullString
		completedAt sql.NullTime
	)
	err := s.Scan(&task.ID, &task.Description, &task.Workflow, &state, &task.Priority, &task.Progress,
		&currentStep, &task.Iteration, &task.MaxIterations, &gateEnabled,
		&contextJSON, &checksJSON, &errText, &task.CreatedAt, &task.UpdatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.State = models.TaskState(state)
	task.QualityGateEnabled = gateEnabled != 0
	task.CurrentStep = currentStep.String
	task.Error = errText.String
	if completedAt.Valid {
		ts := completedAt.Time
		task.CompletedAt = &ts
	}
	if contextJSON.Valid && contextJSON.String != "null" && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &task.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	if checksJSON.Valid && checksJSON.String != "null" && checksJSON.String != "" {
		if err := json.Unmarshal([]byte(checksJSON.String), &task.CheckResults); err != nil {
			return nil, fmt.Errorf("unmarshal check results: %w", err)
		}
	}
	return &task, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
