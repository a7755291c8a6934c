package vfat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"
)

// TaskStatus is the lifecycle state of a scheduled command.
type TaskStatus int

const (
	TaskQueued TaskStatus = iota
	TaskRunning
	TaskDone
	TaskFailed
)

func (s TaskStatus) String() string {
	switch s {
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskDone:
		return "done"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is a single unit of work submitted to the Scheduler: an operation
// against fsys, identified by a UUID so callers can correlate submission
// with completion independently of submission order. done is closed by
// the worker goroutine once Status/Err reach their final value, giving a
// submitter a completion signal to block on instead of polling Status.
type Task struct {
	ID         uuid.UUID
	Status     TaskStatus
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	done       chan struct{}
}

// Wait blocks until the task finishes (or ctx is done first), then
// returns its result exactly as the per-task completion signal a
// submitter blocks on: nil on success, the task's error otherwise.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scheduler serializes filesystem commands through a FIFO queue while
// bounding how many may run concurrently, and drives a periodic
// maintenance flush independent of client-submitted work. It does not
// replace FS's own coarse mutex: the semaphore bounds concurrent
// goroutines contending for that mutex, it does not widen it.
type Scheduler struct {
	fsys *FS
	sem  *semaphore.Weighted
	cron *cron.Cron

	mu    sync.Mutex
	tasks map[uuid.UUID]*Task
	wg    sync.WaitGroup
}

// NewScheduler creates a scheduler bounding fsys to maxConcurrent
// in-flight tasks, and submitting a flush_all task to the queue every
// flushInterval until Shutdown is called.
func NewScheduler(fsys *FS, maxConcurrent int, flushInterval time.Duration) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxIOTasks
	}
	s := &Scheduler{
		fsys:  fsys,
		sem:   semaphore.NewWeighted(int64(maxConcurrent)),
		cron:  cron.New(),
		tasks: make(map[uuid.UUID]*Task),
	}
	if flushInterval > 0 {
		spec := "@every " + flushInterval.String()
		s.cron.AddFunc(spec, func() {
			s.Submit(context.Background(), func() error {
				return s.fsys.buf.FlushAll()
			})
		})
		s.cron.Start()
	}
	return s
}

// Submit enqueues work and blocks until a concurrency slot is available,
// then runs it in its own goroutine and returns immediately with a
// handle the caller can either poll via Status or block on via Wait for
// the per-task completion signal. ctx bounds only the wait for a slot,
// not the work itself.
func (s *Scheduler) Submit(ctx context.Context, work func() error) (*Task, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	task := &Task{ID: id, Status: TaskQueued, done: make(chan struct{})}
	s.mu.Lock()
	s.tasks[id] = task
	s.mu.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		task.Status = TaskFailed
		task.Err = err
		s.mu.Unlock()
		close(task.done)
		return task, err
	}

	s.wg.Add(1)
	s.mu.Lock()
	task.Status = TaskRunning
	task.StartedAt = time.Now()
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		err := work()
		s.mu.Lock()
		task.FinishedAt = time.Now()
		if err != nil {
			task.Status = TaskFailed
			task.Err = err
		} else {
			task.Status = TaskDone
		}
		s.mu.Unlock()
		close(task.done)
	}()
	return task, nil
}

// Status returns the current state of a previously-submitted task.
func (s *Scheduler) Status(id uuid.UUID) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Shutdown stops the maintenance ticker and waits for every in-flight
// task to finish.
func (s *Scheduler) Shutdown() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
}
