// Package taskqueue implements the durable background task executor. Tasks
// are persisted rows; exactly one worker goroutine pulls them FIFO, runs the
// registered handler for the task type, and records the terminal state.
// Interrupted tasks are re-queued on startup in their original order.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ryosa/hibiki/internal/models"
	"github.com/ryosa/hibiki/internal/store"
)

// Handler executes one task. The returned value is persisted as the task
// result; a returned error (or a panic) marks the task failed with the
// message stored verbatim.
type Handler func(ctx context.Context, task *models.Task) (interface{}, error)

// Notifier receives task state changes, typically the websocket hub.
type Notifier interface {
	BroadcastJSON(v interface{})
}

// Service owns the task table and the single worker.
type Service struct {
	st       *store.Store
	notifier Notifier

	mu       sync.Mutex
	handlers map[string]Handler

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// New creates a task queue service. The notifier may be nil.
func New(st *store.Store, notifier Notifier) *Service {
	return &Service{
		st:       st,
		notifier: notifier,
		handlers: make(map[string]Handler),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Register binds a handler to a task type. Must be called before Start.
func (s *Service) Register(taskType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[taskType] = h
}

// Start re-queues tasks interrupted by a previous crash and launches the
// worker goroutine. A task that was running at crash time is assumed not
// completed.
func (s *Service) Start() error {
	n, err := s.st.ResetInterruptedTasks()
	if err != nil {
		return fmt.Errorf("reset interrupted tasks: %w", err)
	}
	if n > 0 {
		log.Printf("Task queue: re-queued %d interrupted task(s)", n)
	}
	go s.worker()
	return nil
}

// Stop shuts the worker down after the in-flight task finishes.
func (s *Service) Stop() {
	close(s.stop)
	<-s.stopped
}

// DedupKey computes the key that collapses duplicate triggers for a task:
// the subject id when there is one, otherwise a type-specific payload field
// (folder path, quarter/year window), otherwise the bare type.
func DedupKey(taskType string, subject *int64, payload json.RawMessage) string {
	if subject != nil {
		return strconv.FormatInt(*subject, 10)
	}
	switch taskType {
	case models.TaskScanFolder:
		var p struct {
			Folder string `json:"folder"`
		}
		if err := json.Unmarshal(payload, &p); err == nil && p.Folder != "" {
			return p.Folder
		}
	case models.TaskRefreshCatalog:
		var p struct {
			Quarter int `json:"quarter"`
			Year    int `json:"year"`
		}
		if err := json.Unmarshal(payload, &p); err == nil && p.Year != 0 {
			return fmt.Sprintf("%d-q%d", p.Year, p.Quarter)
		}
	}
	return taskType
}

// Enqueue creates and persists a pending task and signals the worker. When a
// pending or running task with the same dedup key already exists, that task
// is returned instead of creating a new one.
func (s *Service) Enqueue(taskType string, subject *int64, payload interface{}) (*models.Task, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}

	// The existence check and the insert must happen under one lock:
	// concurrent triggers with the same dedup key would otherwise all pass
	// the check and each insert a task.
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.handlers[taskType]; !known {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	dedupKey := DedupKey(taskType, subject, raw)
	if existing, err := s.st.GetActiveTask(taskType, dedupKey); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	task := &models.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		SubjectID: subject,
		DedupKey:  dedupKey,
		Payload:   raw,
	}
	if err := s.st.CreateTask(task); err != nil {
		return nil, err
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return task, nil
}

// GetByID returns a task by id, or nil.
func (s *Service) GetByID(id string) (*models.Task, error) {
	return s.st.GetTask(id)
}

// GetActiveForSubject returns the pending/running task for a subject, or nil.
func (s *Service) GetActiveForSubject(taskType string, subject int64) (*models.Task, error) {
	return s.st.GetActiveTask(taskType, strconv.FormatInt(subject, 10))
}

func (s *Service) worker() {
	defer close(s.stopped)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		task, err := s.st.NextPendingTask()
		if err != nil {
			log.Printf("Task queue: fetching next task: %v", err)
		} else if task != nil {
			s.execute(task)
			// Drain any pending wake signal and look again immediately.
			select {
			case <-s.wake:
			default:
			}
			select {
			case <-s.stop:
				return
			default:
			}
			continue
		}

		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-ticker.C:
		}
	}
}

// execute runs a single task to its terminal state. Handler errors and
// panics are recorded on the task; they never stop the worker.
func (s *Service) execute(task *models.Task) {
	if err := s.st.MarkTaskRunning(task.ID); err != nil {
		log.Printf("Task queue: marking task %s running: %v", task.ID, err)
		return
	}
	s.broadcast(task.ID, task.Type, models.TaskStatusRunning, "")
	log.Printf("Task queue: running %s (%s)", task.Type, task.ID)

	s.mu.Lock()
	handler, ok := s.handlers[task.Type]
	s.mu.Unlock()
	if !ok {
		s.fail(task, fmt.Sprintf("unknown task type %q", task.Type))
		return
	}

	var result interface{}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		result, err = handler(context.Background(), task)
		return err
	}()

	if err != nil {
		s.fail(task, err.Error())
		return
	}

	var raw []byte
	if result != nil {
		if raw, err = json.Marshal(result); err != nil {
			s.fail(task, fmt.Sprintf("marshal result: %v", err))
			return
		}
	}
	if err := s.st.CompleteTask(task.ID, raw); err != nil {
		log.Printf("Task queue: completing task %s: %v", task.ID, err)
		return
	}
	s.broadcast(task.ID, task.Type, models.TaskStatusCompleted, "")
	log.Printf("Task queue: finished %s (%s)", task.Type, task.ID)
}

func (s *Service) fail(task *models.Task, msg string) {
	if err := s.st.FailTask(task.ID, msg); err != nil {
		log.Printf("Task queue: failing task %s: %v", task.ID, err)
	}
	s.broadcast(task.ID, task.Type, models.TaskStatusFailed, msg)
	log.Printf("Task queue: task %s (%s) failed: %s", task.Type, task.ID, msg)
}

func (s *Service) broadcast(id, taskType, status, msg string) {
	if s.notifier == nil {
		return
	}
	done := status == models.TaskStatusCompleted || status == models.TaskStatusFailed
	s.notifier.BroadcastJSON(models.ProgressUpdate{
		Source:  "tasks",
		ItemID:  id,
		Message: msg,
		Status:  status,
		Done:    done,
	})
}
