// Package scheduler drives the lock-guarded periodic collection tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/collector"
	"github.com/suwandre/fundarb/internal/lock"
	"github.com/suwandre/fundarb/internal/metrics"
)

const (
	MinInterval = 5 * time.Second
	// DefaultLockKey identifies the ingestion lock shared by every replica.
	DefaultLockKey int64 = 424242
)

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	RunOnce(ctx context.Context) (collector.Result, error)
}

// Scheduler runs the collector every interval. Only the replica holding the
// advisory lock ingests on a given tick.
type Scheduler struct {
	runner   Runner
	locker   lock.Locker
	lockKey  int64
	interval time.Duration

	state   atomic.Int32
	started atomic.Bool
	stopped atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewScheduler(runner Runner, locker lock.Locker, lockKey int64, interval time.Duration) (*Scheduler, error) {
	if interval < MinInterval {
		return nil, fmt.Errorf("scheduler: interval %s is below the %s minimum", interval, MinInterval)
	}
	return &Scheduler{
		runner:   runner,
		locker:   locker,
		lockKey:  lockKey,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Begins the polling loop in a background goroutine. The first tick runs
// immediately.
func (s *Scheduler) Start(ctx context.Context) {
	// ticks outlive the shutdown signal so an in-flight pass can finish
	tickCtx := context.WithoutCancel(ctx)

	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(s.done)
		s.loop(tickCtx)
	}()

	log.Info().
		Stringer("interval", s.interval).
		Int64("lock_key", s.lockKey).
		Msg("scheduler started")
}

// Stop signals the loop to exit and waits for an in-flight tick to finish.
// Safe to call more than once, and before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
	if !s.started.Load() {
		s.state.Store(int32(Stopped))
		return
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.state.Store(int32(Stopped))

	for !s.stopped.Load() {
		if _, err := s.Tick(ctx); err != nil {
			log.Warn().Err(err).Msg("funding tick failed")
		}

		if s.stopped.Load() {
			break
		}

		// period is interval plus tick duration
		timer := time.NewTimer(s.interval)
		select {
		case <-timer.C:
		case <-s.stopCh:
			timer.Stop()
		}
	}

	log.Info().Msg("scheduler stopped")
}

// Tick runs one collection pass if this replica wins the lock. ran is false
// when another replica holds it.
func (s *Scheduler) Tick(ctx context.Context) (ran bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: tick panicked: %v", r)
		}
	}()

	got, err := s.locker.TryLock(ctx, s.lockKey)
	if err != nil {
		return false, fmt.Errorf("scheduler: acquire lock: %w", err)
	}
	if !got {
		metrics.TicksSkipped.Inc()
		log.Debug().Int64("lock_key", s.lockKey).Msg("funding tick skipped, lock held elsewhere")
		return false, nil
	}

	s.state.Store(int32(Running))
	defer func() {
		if !s.stopped.Load() {
			s.state.Store(int32(Idle))
		}
		if uerr := s.locker.Unlock(ctx, s.lockKey); uerr != nil {
			log.Error().Err(uerr).Int64("lock_key", s.lockKey).Msg("failed to release ingestion lock")
		}
	}()

	started := time.Now()
	res, err := s.runner.RunOnce(ctx)
	elapsed := time.Since(started)
	metrics.TickDuration.Observe(elapsed.Seconds())

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	for code, n := range res.Counts {
		ev = ev.Int(code, n)
	}
	ev.Int64("retrieved_at_ms", res.RetrievedAtMs).Dur("took", elapsed).Msg("funding ingest")

	return true, err
}
