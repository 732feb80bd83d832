// Package batch paces per-symbol requests for venues that have no bulk
// endpoint. A rotating cursor spreads a large universe over several ticks;
// within a tick requests go out in one-second windows of at most RPS calls.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const DefaultWorkers = 5

type Config struct {
	BatchSize int           // symbols selected per tick
	RPS       int           // requests-per-second ceiling
	Workers   int           // concurrent fetches inside a window
	Budget    time.Duration // a tick stops starting new windows after this long
	Cursor    int           // starting cursor, normally 0
}

type Scheduler struct {
	batchSize int
	rps       int
	workers   int
	budget    time.Duration

	mu     sync.Mutex
	cursor int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Stats summarises one Collect call.
type Stats struct {
	Selected  int
	Attempted int
	Succeeded int
	Failed    int
	Chunks    int
	Truncated bool
}

type FetchFunc[T any] func(ctx context.Context, symbol string) (T, error)

func New(cfg Config) (*Scheduler, error) {
	if cfg.RPS <= 0 {
		return nil, errors.New("batch: rps must be positive")
	}
	if cfg.BatchSize <= 0 {
		return nil, errors.New("batch: batch size must be positive")
	}
	if cfg.Budget <= 0 {
		return nil, errors.New("batch: budget must be positive")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Cursor < 0 {
		cfg.Cursor = 0
	}

	return &Scheduler{
		batchSize: cfg.BatchSize,
		rps:       cfg.RPS,
		workers:   cfg.Workers,
		budget:    cfg.Budget,
		cursor:    cfg.Cursor,
		now:       time.Now,
		sleep:     sleepCtx,
	}, nil
}

func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// NextBatch returns the next BatchSize symbols of universe starting at the
// cursor, wrapping around, and advances the cursor past them.
func (s *Scheduler) NextBatch(universe []string) []string {
	if len(universe) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	size := min(s.batchSize, len(universe))
	// the universe may have shrunk since the last tick
	start := s.cursor % len(universe)

	out := make([]string, size)
	for i := range size {
		out[i] = universe[(start+i)%len(universe)]
	}
	s.cursor = (start + size) % len(universe)
	return out
}

// Collect fetches the next batch of universe under the RPS ceiling. Failed
// symbols are dropped; results keep batch order.
func Collect[T any](ctx context.Context, s *Scheduler, tickStart time.Time, universe []string, fetch FetchFunc[T]) ([]T, Stats) {
	batch := s.NextBatch(universe)
	stats := Stats{Selected: len(batch)}
	out := make([]T, 0, len(batch))

	for i := 0; i < len(batch); i += s.rps {
		if s.now().Sub(tickStart) >= s.budget || ctx.Err() != nil {
			stats.Truncated = true
			break
		}

		chunk := batch[i:min(i+s.rps, len(batch))]
		started := s.now()

		results := make([]T, len(chunk))
		ok := make([]bool, len(chunk))

		var g errgroup.Group
		g.SetLimit(s.workers)
		for j, sym := range chunk {
			g.Go(func() error {
				v, err := fetch(ctx, sym)
				if err != nil {
					log.Debug().Err(err).Str("symbol", sym).Msg("symbol fetch failed, skipping")
					return nil
				}
				results[j] = v
				ok[j] = true
				return nil
			})
		}
		_ = g.Wait()

		stats.Chunks++
		stats.Attempted += len(chunk)
		for j := range chunk {
			if ok[j] {
				out = append(out, results[j])
				stats.Succeeded++
			} else {
				stats.Failed++
			}
		}

		if i+s.rps >= len(batch) {
			break
		}
		if wait := time.Second - s.now().Sub(started); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				stats.Truncated = true
				break
			}
		}
	}

	return out, stats
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
