// Package collector runs one ingestion pass across every configured venue.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/metrics"
	"github.com/suwandre/fundarb/internal/models"
)

type Ingester interface {
	Ingest(ctx context.Context, rows []models.IngestRow) (int, error)
}

// Pass carries what every pipeline of one run shares.
type Pass struct {
	RunID         string
	Started       time.Time
	RetrievedAtMs int64
}

type Result struct {
	Counts        map[string]int `json:"counts"`
	RetrievedAtMs int64          `json:"retrieved_at_ms"`
}

type Collector struct {
	ingest    Ingester
	pipelines []Pipeline
	now       func() time.Time
}

func New(ingest Ingester, pipelines ...Pipeline) *Collector {
	return &Collector{
		ingest:    ingest,
		pipelines: pipelines,
		now:       time.Now,
	}
}

// RunOnce collects and ingests every venue in order. A venue whose feed fails
// contributes zero rows and never stops the others. Storage failures are
// reported in the returned error after all venues ran.
func (c *Collector) RunOnce(ctx context.Context) (Result, error) {
	started := c.now()
	pass := Pass{
		RunID:         uuid.NewString(),
		Started:       started,
		RetrievedAtMs: started.UnixMilli(),
	}

	res := Result{
		Counts:        make(map[string]int, len(c.pipelines)),
		RetrievedAtMs: pass.RetrievedAtMs,
	}

	var errs []error
	for _, p := range c.pipelines {
		code := p.Exchange()
		res.Counts[code] = 0

		rows, err := p.Collect(ctx, pass)
		if err != nil {
			metrics.FetchFailures.WithLabelValues(code).Inc()
			log.Warn().Err(err).Str("run", pass.RunID).Str("exchange", code).Msg("fetch failed, no rows this pass")
			rows = nil
		}

		n, err := c.ingest.Ingest(ctx, rows)
		if err != nil {
			log.Error().Err(err).Str("run", pass.RunID).Str("exchange", code).Int("rows", len(rows)).Msg("ingest failed")
			errs = append(errs, fmt.Errorf("%s: %w", code, err))
			continue
		}

		res.Counts[code] = n
		metrics.IngestedRows.WithLabelValues(code).Add(float64(n))
	}

	return res, errors.Join(errs...)
}
