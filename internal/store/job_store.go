package store

import (
	"database/sql"
	"time"

	"github.com/ryosa/hibiki/internal/models"
)

const jobColumns = "id, name, job_type, cron_expr, enabled, config, last_run_at, next_run_at, created_at, updated_at"

func scanJob(row interface{ Scan(...interface{}) error }) (*models.ScheduledJob, error) {
	var j models.ScheduledJob
	var config sql.NullString
	var lastRun, nextRun sql.NullTime
	err := row.Scan(&j.ID, &j.Name, &j.JobType, &j.CronExpr, &j.Enabled, &config, &lastRun, &nextRun, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if config.Valid {
		j.Config = []byte(config.String)
	}
	if lastRun.Valid {
		j.LastRunAt = &lastRun.Time
	}
	if nextRun.Valid {
		j.NextRunAt = &nextRun.Time
	}
	return &j, nil
}

// CreateJob persists a new scheduled job and returns it with its id set.
func (s *Store) CreateJob(j *models.ScheduledJob) error {
	now := time.Now()
	res, err := s.db.Exec(`
        INSERT INTO scheduled_jobs (name, job_type, cron_expr, enabled, config, next_run_at, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, j.Name, j.JobType, j.CronExpr, j.Enabled, nullableString(j.Config), j.NextRunAt, now, now)
	if err != nil {
		return err
	}
	j.ID, err = res.LastInsertId()
	j.CreatedAt = now
	j.UpdatedAt = now
	return err
}

// UpdateJob rewrites a job's editable fields.
func (s *Store) UpdateJob(j *models.ScheduledJob) error {
	_, err := s.db.Exec(`
        UPDATE scheduled_jobs
        SET name = ?, job_type = ?, cron_expr = ?, enabled = ?, config = ?, next_run_at = ?, updated_at = ?
        WHERE id = ?
    `, j.Name, j.JobType, j.CronExpr, j.Enabled, nullableString(j.Config), j.NextRunAt, time.Now(), j.ID)
	return err
}

// DeleteJob removes a scheduled job.
func (s *Store) DeleteJob(id int64) error {
	_, err := s.db.Exec("DELETE FROM scheduled_jobs WHERE id = ?", id)
	return err
}

// GetJob returns a job by id, or nil if it does not exist.
func (s *Store) GetJob(id int64) (*models.ScheduledJob, error) {
	j, err := scanJob(s.db.QueryRow("SELECT "+jobColumns+" FROM scheduled_jobs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// ListJobs returns all jobs, or only the enabled ones.
func (s *Store) ListJobs(enabledOnly bool) ([]*models.ScheduledJob, error) {
	query := "SELECT " + jobColumns + " FROM scheduled_jobs ORDER BY id"
	if enabledOnly {
		query = "SELECT " + jobColumns + " FROM scheduled_jobs WHERE enabled = 1 ORDER BY id"
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.ScheduledJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FindJobByTypeAndConfig returns an existing job with equal type and config,
// used to avoid creating duplicate window jobs.
func (s *Store) FindJobByTypeAndConfig(jobType string, config []byte) (*models.ScheduledJob, error) {
	j, err := scanJob(s.db.QueryRow(
		"SELECT "+jobColumns+" FROM scheduled_jobs WHERE job_type = ? AND COALESCE(config, '') = ? LIMIT 1",
		jobType, string(config)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return j, err
}

// RecordJobRun persists a job's last-run and recomputed next-run timestamps.
func (s *Store) RecordJobRun(id int64, lastRun time.Time, nextRun *time.Time) error {
	_, err := s.db.Exec("UPDATE scheduled_jobs SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?",
		lastRun, nextRun, time.Now(), id)
	return err
}
