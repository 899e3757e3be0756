package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/observe"
)

// ErrSchedulerClosed is recorded on tasks enqueued after Close.
var ErrSchedulerClosed = errors.New("scheduler is closed")

// Task is a unit of playback work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

// Run calls f.
func (f TaskFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Stats tracks scheduler activity.
type Stats struct {
	TotalEnqueued  int64
	TotalCompleted int64
	TotalFailed    int64
	TotalCanceled  int64
	CurrentSize    int
	PeakSize       int
	LastEnqueue    time.Time
	LastComplete   time.Time
}

type item struct {
	task   Task
	handle *Handle
}

// Scheduler runs tasks one at a time in FIFO order.
type Scheduler struct {
	logger  *log.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	pending []*item
	playing bool
	current *item
	cancel  context.CancelFunc

	// gen advances on Stop so completions of abandoned tasks are ignored.
	gen uint64

	closed bool
	stats  Stats
	wg     sync.WaitGroup
}

// NewScheduler creates an idle scheduler.
func NewScheduler(logger *log.Logger, metrics *observe.Metrics) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{logger: logger, metrics: metrics}
}

// Enqueue appends task and starts it at once if nothing is in flight.
func (s *Scheduler) Enqueue(name string, task Task) *Handle {
	h := newHandle(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		h.finish(StateCanceled, ErrSchedulerClosed)
		return h
	}

	s.pending = append(s.pending, &item{task: task, handle: h})
	s.stats.TotalEnqueued++
	s.stats.LastEnqueue = h.enqueued
	if n := len(s.pending); n > s.stats.PeakSize {
		s.stats.PeakSize = n
	}
	s.metrics.AddQueueDepth(context.Background(), 1)

	if !s.playing {
		s.promoteLocked()
	}
	return h
}

// promoteLocked starts the head of the queue, or clears the playing flag
// when there is none.
func (s *Scheduler) promoteLocked() {
	if len(s.pending) == 0 {
		s.playing = false
		s.current = nil
		s.cancel = nil
		return
	}

	it := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	s.metrics.AddQueueDepth(context.Background(), -1)

	ctx, cancel := context.WithCancel(context.Background())
	s.playing = true
	s.current = it
	s.cancel = cancel
	it.handle.setInFlight()

	s.wg.Add(1)
	go s.run(ctx, cancel, it, s.gen)
}

func (s *Scheduler) run(ctx context.Context, cancel context.CancelFunc, it *item, gen uint64) {
	defer s.wg.Done()
	defer cancel()

	err := s.runTask(ctx, it)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.logger.Debug("Ignoring completion of stopped task", "task", it.handle.name)
		return
	}

	state := StateCompleted
	if err != nil {
		state = StateFailed
		s.stats.TotalFailed++
	} else {
		s.stats.TotalCompleted++
	}
	s.stats.LastComplete = time.Now()
	it.handle.finish(state, err)

	s.promoteLocked()
}

func (s *Scheduler) runTask(ctx context.Context, it *item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Playback task panicked", "task", it.handle.name, "panic", r)
			err = fmt.Errorf("task %s panicked: %v", it.handle.name, r)
		}
	}()
	return it.task.Run(ctx)
}

// Stop cancels the in-flight task and drops everything pending. It returns
// the number of tasks canceled.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Scheduler) stopLocked() int {
	s.gen++
	canceled := 0

	if s.current != nil {
		s.cancel()
		if s.current.handle.finish(StateCanceled, context.Canceled) {
			canceled++
		}
	}
	for _, it := range s.pending {
		if it.handle.finish(StateCanceled, context.Canceled) {
			canceled++
		}
	}
	s.metrics.AddQueueDepth(context.Background(), -int64(len(s.pending)))

	s.pending = nil
	s.playing = false
	s.current = nil
	s.cancel = nil
	s.stats.TotalCanceled += int64(canceled)
	return canceled
}

// Len returns the number of pending tasks, not counting the one in flight.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// IsPlaying reports whether a task is in flight.
func (s *Scheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.CurrentSize = len(s.pending)
	return stats
}

// Close stops all work, rejects further tasks and waits for running task
// goroutines to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.stopLocked()
	}
	s.mu.Unlock()

	s.wg.Wait()
}
