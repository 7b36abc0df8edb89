package scheduler

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

var (
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskAlreadyRunning = errors.New("task is already running")
)

type TaskStatus string

const (
	TaskStatusPending TaskStatus = "pending"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusError   TaskStatus = "error"
)

// Task is a maintenance job run every Interval. Run reports how many items it
// touched.
type Task struct {
	ID       string
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// TaskState is the externally visible status of a task.
type TaskState struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Interval     string     `json:"interval"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
	LastStatus   TaskStatus `json:"lastStatus"`
	LastError    string     `json:"lastError,omitempty"`
	ItemsTouched int        `json:"itemsTouched"`
}

// Service manages scheduled task execution
type Service struct {
	checkInterval time.Duration
	now           func() time.Time

	// Runtime state
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Task state tracking (in-memory, not persisted)
	taskMu      sync.RWMutex
	tasks       map[string]Task
	states      map[string]*TaskState
	taskRunning map[string]bool
}

// NewService creates a scheduler that looks for due tasks every checkInterval.
func NewService(checkInterval time.Duration) *Service {
	if checkInterval < time.Second {
		checkInterval = 60 * time.Second
	}
	return &Service{
		checkInterval: checkInterval,
		now:           time.Now,
		tasks:         make(map[string]Task),
		states:        make(map[string]*TaskState),
		taskRunning:   make(map[string]bool),
	}
}

// Register adds or replaces a task. Tasks without a Run func or a positive
// interval are ignored.
func (s *Service) Register(task Task) {
	if task.Run == nil || task.Interval <= 0 || task.ID == "" {
		log.Printf("[scheduler] Ignoring invalid task %q", task.ID)
		return
	}
	if task.Name == "" {
		task.Name = task.ID
	}
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	s.tasks[task.ID] = task
	s.states[task.ID] = &TaskState{
		ID:         task.ID,
		Name:       task.Name,
		Interval:   task.Interval.String(),
		LastStatus: TaskStatusPending,
	}
}

// Start begins the scheduler background loop
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.schedulerLoop()

	log.Println("[scheduler] Scheduler service started")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.cancel()

	// Wait for all tasks to complete with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] Scheduler service stopped gracefully")
	case <-ctx.Done():
		log.Println("[scheduler] Scheduler service stopped (timeout)")
	}

	s.running = false
	return nil
}

func (s *Service) schedulerLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunTasks()
		}
	}
}

// checkAndRunTasks starts every task that is due
func (s *Service) checkAndRunTasks() {
	s.taskMu.RLock()
	var due []Task
	for id, task := range s.tasks {
		if s.shouldRunLocked(id, task) {
			due = append(due, task)
		}
	}
	s.taskMu.RUnlock()

	for _, task := range due {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.executeTask(s.ctx, t)
		}(task)
	}
}

func (s *Service) shouldRunLocked(id string, task Task) bool {
	if s.taskRunning[id] {
		return false
	}
	state := s.states[id]
	if state == nil || state.LastRunAt == nil {
		return true
	}
	return s.now().Sub(*state.LastRunAt) >= task.Interval
}

// executeTask runs a task and records its outcome. It reports false without
// running anything when another run already holds the task.
func (s *Service) executeTask(ctx context.Context, task Task) bool {
	s.taskMu.Lock()
	if s.taskRunning[task.ID] {
		s.taskMu.Unlock()
		return false
	}
	s.taskRunning[task.ID] = true
	s.taskMu.Unlock()

	defer func() {
		s.taskMu.Lock()
		delete(s.taskRunning, task.ID)
		s.taskMu.Unlock()
	}()

	items, err := task.Run(ctx)

	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	now := s.now().UTC()
	state := s.states[task.ID]
	state.LastRunAt = &now
	state.ItemsTouched = items
	if err != nil {
		state.LastStatus = TaskStatusError
		state.LastError = err.Error()
		log.Printf("[scheduler] Task %s failed: %v", task.ID, err)
		return true
	}
	state.LastStatus = TaskStatusSuccess
	state.LastError = ""
	if items > 0 {
		log.Printf("[scheduler] Task %s completed, %d item(s)", task.ID, items)
	}
	return true
}

// RunTaskNow runs a task synchronously, regardless of its schedule.
func (s *Service) RunTaskNow(ctx context.Context, taskID string) (TaskState, error) {
	s.taskMu.RLock()
	task, ok := s.tasks[taskID]
	s.taskMu.RUnlock()

	if !ok {
		return TaskState{}, ErrTaskNotFound
	}
	if !s.executeTask(ctx, task) {
		return TaskState{}, ErrTaskAlreadyRunning
	}

	s.taskMu.RLock()
	defer s.taskMu.RUnlock()
	return *s.states[taskID], nil
}

// GetTaskStatus returns all tasks sorted by id. Running tasks report
// TaskStatusRunning.
func (s *Service) GetTaskStatus() []TaskState {
	s.taskMu.RLock()
	defer s.taskMu.RUnlock()

	out := make([]TaskState, 0, len(s.states))
	for id, state := range s.states {
		st := *state
		if s.taskRunning[id] {
			st.LastStatus = TaskStatusRunning
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
