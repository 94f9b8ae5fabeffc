package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

// CreateTask persists a new pending task.
func (s *Store) CreateTask(t *models.Task) error {
	now := time.Now()
	t.Status = models.TaskStatusPending
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.Exec(`
        INSERT INTO tasks (id, type, status, subject_id, dedup_key, payload, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, t.ID, t.Type, t.Status, t.SubjectID, t.DedupKey, nullableString(t.Payload), now, now)
	return err
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	var t models.Task
	var payload, result, errMsg sql.NullString
	err := row.Scan(&t.ID, &t.Type, &t.Status, &t.SubjectID, &t.DedupKey, &payload, &result, &errMsg, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		t.Payload = []byte(payload.String)
	}
	if result.Valid {
		t.Result = []byte(result.String)
	}
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	return &t, nil
}

const taskColumns = "id, type, status, subject_id, dedup_key, payload, result, error, created_at, updated_at"

// GetTask returns a task by id, or nil if it does not exist.
func (s *Store) GetTask(id string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRow("SELECT "+taskColumns+" FROM tasks WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// GetActiveTask returns the oldest pending or running task matching
// (type, dedup key), or nil. Used to collapse duplicate triggers.
func (s *Store) GetActiveTask(taskType, dedupKey string) (*models.Task, error) {
	t, err := scanTask(s.db.QueryRow(`
        SELECT `+taskColumns+` FROM tasks
        WHERE type = ? AND dedup_key = ? AND status IN (?, ?)
        ORDER BY created_at, id LIMIT 1
    `, taskType, dedupKey, models.TaskStatusPending, models.TaskStatusRunning))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// NextPendingTask returns the oldest pending task, FIFO by creation.
func (s *Store) NextPendingTask() (*models.Task, error) {
	t, err := scanTask(s.db.QueryRow(
		"SELECT "+taskColumns+" FROM tasks WHERE status = ? ORDER BY created_at, id LIMIT 1",
		models.TaskStatusPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

// MarkTaskRunning transitions a pending task to running.
func (s *Store) MarkTaskRunning(id string) error {
	_, err := s.db.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		models.TaskStatusRunning, time.Now(), id, models.TaskStatusPending)
	return err
}

// CompleteTask records the terminal success state and its result exactly once.
func (s *Store) CompleteTask(id string, result []byte) error {
	_, err := s.db.Exec(`
        UPDATE tasks SET status = ?, result = ?, updated_at = ?
        WHERE id = ? AND status = ?
    `, models.TaskStatusCompleted, nullableString(result), time.Now(), id, models.TaskStatusRunning)
	return err
}

// FailTask records the terminal failure state and the error message verbatim.
func (s *Store) FailTask(id string, errMsg string) error {
	_, err := s.db.Exec(`
        UPDATE tasks SET status = ?, error = ?, updated_at = ?
        WHERE id = ? AND status IN (?, ?)
    `, models.TaskStatusFailed, errMsg, time.Now(), id, models.TaskStatusPending, models.TaskStatusRunning)
	return err
}

// ResetInterruptedTasks moves every pending or running task back to pending.
// Called once at startup: a task that was running at crash time is assumed
// not completed, and original creation order is preserved.
func (s *Store) ResetInterruptedTasks() (int64, error) {
	res, err := s.db.Exec("UPDATE tasks SET status = ?, updated_at = ? WHERE status IN (?, ?)",
		models.TaskStatusPending, time.Now(), models.TaskStatusPending, models.TaskStatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeTerminalTasks deletes completed and failed tasks older than the cutoff.
func (s *Store) PurgeTerminalTasks(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM tasks WHERE status IN (?, ?) AND updated_at < ?",
		models.TaskStatusCompleted, models.TaskStatusFailed, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
