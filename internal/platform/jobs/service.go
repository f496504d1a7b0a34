package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	JobSessionSweep   = "session_sweep"
	JobRateLimitPrune = "ratelimit_prune"
)

type RunFunc func(context.Context) (any, error)

// Run describes a completed job execution.
type Run struct {
	Type        string
	Status      string
	Details     any
	StartedAt   time.Time
	CompletedAt time.Time
}

type Service struct {
	logger *zap.Logger
	queue  chan job

	mu      sync.Mutex
	lastRun map[string]Run
	wg      sync.WaitGroup
}

type job struct {
	Type string
	Run  RunFunc
}

func New(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:  logger,
		queue:   make(chan job, 128),
		lastRun: make(map[string]Run),
	}
}

// Start launches the worker. It stops when ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.worker(ctx)
	}()
}

// Schedule enqueues run every interval until ctx is cancelled.
func (s *Service) Schedule(ctx context.Context, jobType string, interval time.Duration, run RunFunc) {
	if interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Enqueue(jobType, run)
			}
		}
	}()
}

func (s *Service) Enqueue(jobType string, run RunFunc) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		s.logger.Warn("job queue full", zap.String("jobType", jobType))
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run RunFunc) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// LastRun reports the most recent execution of jobType.
func (s *Service) LastRun(jobType string) (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.lastRun[jobType]
	return r, ok
}

// Wait blocks until the worker and schedulers have returned.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				s.logger.Warn("job run failed", zap.String("jobType", j.Type), zap.Error(err))
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	started := time.Now().UTC()
	details, err := j.Run(ctx)
	status := "completed"
	if err != nil {
		status = "failed"
	}
	run := Run{
		Type:        j.Type,
		Status:      status,
		Details:     details,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.lastRun[j.Type] = run
	s.mu.Unlock()

	s.logger.Debug("job run finished",
		zap.String("jobType", j.Type),
		zap.String("status", status),
		zap.Duration("elapsed", run.CompletedAt.Sub(started)),
	)
	return details, err
}
