// Package schedule arms one trigger per enabled scheduled job and turns
// each firing into a task-queue enqueue. Job definitions are few and change
// rarely, so any edit simply tears every trigger down and re-arms from the
// database.
package schedule

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
)

// Enqueuer is the slice of the task queue the scheduler needs.
type Enqueuer interface {
	Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error)
}

// Service owns the gocron scheduler and the scheduled_jobs table.
type Service struct {
	st    *store.Store
	queue Enqueuer

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// New creates the scheduler service. Call Initialize to arm triggers.
func New(st *store.Store, queue Enqueuer) *Service {
	s := &Service{st: st, queue: queue}
	s.scheduler = gocron.NewScheduler(time.Local)
	s.scheduler.SingletonModeAll()
	return s
}

// Initialize tears down all active triggers, loads the enabled jobs and
// re-arms one trigger per job.
func (s *Service) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scheduler.Clear()

	jobs, err := s.st.ListJobs(true)
	if err != nil {
		return fmt.Errorf("load enabled jobs: %w", err)
	}

	for _, job := range jobs {
		if err := s.arm(job); err != nil {
			log.Printf("Scheduler: could not arm job %q (%d): %v", job.Name, job.ID, err)
			continue
		}
		job.NextRunAt = CalculateNextRun(job.CronExpr, time.Now())
		if err := s.st.UpdateJob(job); err != nil {
			log.Printf("Scheduler: persisting next run for job %d: %v", job.ID, err)
		}
	}

	s.scheduler.StartAsync()
	log.Printf("Scheduler: armed %d job trigger(s)", len(jobs))
	return nil
}

// Reload re-evaluates the full trigger set. Called after any job edit.
func (s *Service) Reload() error {
	return s.Initialize()
}

// Stop halts all triggers. In-flight task executions are unaffected.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduler.Stop()
}

func (s *Service) arm(job *models.ScheduledJob) error {
	id := job.ID
	fire := func() { s.fire(id) }

	if _, err := s.scheduler.Cron(job.CronExpr).Do(fire); err == nil {
		return nil
	}
	// An unrecognized but 5-field expression degrades to a daily trigger,
	// mirroring CalculateNextRun.
	if len(strings.Fields(job.CronExpr)) == 5 {
		_, err := s.scheduler.Every(24).Hours().Do(fire)
		return err
	}
	return fmt.Errorf("unparseable cron expression %q", job.CronExpr)
}

// fire re-reads the job row before executing: a job disabled after being
// armed must not run.
func (s *Service) fire(jobID int64) {
	job, err := s.st.GetJob(jobID)
	if err != nil {
		log.Printf("Scheduler: loading job %d: %v", jobID, err)
		return
	}
	if job == nil || !job.Enabled {
		return
	}
	if _, err := s.Execute(job); err != nil {
		log.Printf("Scheduler: executing job %q (%d): %v", job.Name, job.ID, err)
	}
}

// Execute dispatches a job into the task queue by its type, then records
// the run and the recomputed next-run timestamp. Returns the enqueued task.
func (s *Service) Execute(job *models.ScheduledJob) (*models.Task, error) {
	task, err := s.dispatch(job)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return task, s.st.RecordJobRun(job.ID, now, CalculateNextRun(job.CronExpr, now))
}

func (s *Service) dispatch(job *models.ScheduledJob) (*models.Task, error) {
	switch job.JobType {
	case models.TaskScanReleases:
		var cfg struct {
			AnimeID int64 `json:"anime_id"`
		}
		if err := json.Unmarshal(job.Config, &cfg); err != nil || cfg.AnimeID == 0 {
			return nil, fmt.Errorf("job %d: missing anime_id in config", job.ID)
		}
		return s.queue.Enqueue(models.TaskScanReleases, &cfg.AnimeID, nil)
	case models.TaskRefreshCatalog:
		var cfg struct {
			Quarter int `json:"quarter"`
			Year    int `json:"year"`
		}
		if err := json.Unmarshal(job.Config, &cfg); err != nil || cfg.Year == 0 {
			return nil, fmt.Errorf("job %d: missing quarter/year in config", job.ID)
		}
		return s.queue.Enqueue(models.TaskRefreshCatalog, nil, cfg)
	case models.TaskScanFolder:
		var cfg struct {
			Folder string `json:"folder"`
		}
		if len(job.Config) > 0 {
			if err := json.Unmarshal(job.Config, &cfg); err != nil {
				return nil, fmt.Errorf("job %d: invalid config: %w", job.ID, err)
			}
		}
		return s.queue.Enqueue(models.TaskScanFolder, nil, cfg)
	case models.TaskScanAutoDownload:
		return s.queue.Enqueue(models.TaskScanAutoDownload, nil, nil)
	case models.TaskQueueAutoDownload:
		return s.queue.Enqueue(models.TaskQueueAutoDownload, nil, nil)
	default:
		return nil, fmt.Errorf("job %d: unknown job type %q", job.ID, job.JobType)
	}
}

// EnsureWindowJob creates the recurring catalog-refresh job for a quarter
// window unless an equivalent job (same type and config) already exists.
func (s *Service) EnsureWindowJob(name, cronExpr string, quarter, year int) (*models.ScheduledJob, error) {
	config, err := json.Marshal(map[string]int{"quarter": quarter, "year": year})
	if err != nil {
		return nil, err
	}
	if existing, err := s.st.FindJobByTypeAndConfig(models.TaskRefreshCatalog, config); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	job := &models.ScheduledJob{
		Name:      name,
		JobType:   models.TaskRefreshCatalog,
		CronExpr:  cronExpr,
		Enabled:   true,
		Config:    config,
		NextRunAt: CalculateNextRun(cronExpr, time.Now()),
	}
	if err := s.st.CreateJob(job); err != nil {
		return nil, err
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return job, nil
}
