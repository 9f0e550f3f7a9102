package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is a named unit of recurring maintenance work.
type Task struct {
	Name string
	Run  func(context.Context) error
}

// SchedulerConfig tunes the maintenance loop.
type SchedulerConfig struct {
	Interval   time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Scheduler runs registered tasks on a fixed interval. Tasks run serially in
// registration order; a failing task is retried with a delay before the
// scheduler moves on, so one bad task cannot starve the rest forever.
type Scheduler struct {
	interval   time.Duration
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewScheduler builds a scheduler with the provided config.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scheduler{
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
}

// Start launches the loop. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Sugar().Infow("maintenance scheduler started", "tasks", len(s.tasks), "interval", s.interval)
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Sugar().Infow("maintenance scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Scheduler) runAll(ctx context.Context) {
	s.mu.Lock()
	tasks := s.tasks
	s.mu.Unlock()

	for _, task := range tasks {
		s.runWithRetry(ctx, task)
	}
}

func (s *Scheduler) runWithRetry(ctx context.Context, task Task) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := task.Run(ctx)
		if err == nil {
			return
		}
		if attempt == s.maxRetries {
			s.logger.Sugar().Errorw("maintenance task exceeded retries", "task", task.Name, "error", err)
			return
		}
		s.logger.Sugar().Warnw("maintenance task failed, retrying", "task", task.Name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}
