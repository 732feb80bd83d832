package collector

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/batch"
	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/fixedpoint"
	"github.com/suwandre/fundarb/internal/metrics"
	"github.com/suwandre/fundarb/internal/models"
)

// Pipeline fetches one venue and normalizes it into ingest rows.
type Pipeline interface {
	Exchange() string
	Collect(ctx context.Context, pass Pass) ([]models.IngestRow, error)
}

// BulkPipeline serves venues whose whole board comes back in one call.
type BulkPipeline struct {
	feed exchange.BulkFeed
}

func NewBulkPipeline(feed exchange.BulkFeed) *BulkPipeline {
	return &BulkPipeline{feed: feed}
}

func (p *BulkPipeline) Exchange() string {
	return p.feed.Name()
}

func (p *BulkPipeline) Collect(ctx context.Context, pass Pass) ([]models.IngestRow, error) {
	raw, err := p.feed.FetchFunding(ctx)
	if err != nil {
		return nil, err
	}

	code := p.feed.Name()
	rows := make([]models.IngestRow, 0, len(raw))
	for _, r := range raw {
		rows = append(rows, bulkRow(code, r, pass.RetrievedAtMs))
	}
	return rows, nil
}

type MexcFeed interface {
	Name() string
	Tickers(ctx context.Context) ([]exchange.MexcTicker, error)
	FetchFunding(ctx context.Context, symbol string) (*exchange.MexcFunding, error)
}

// MexcPipeline lists the contract universe once per tick and fetches funding
// per symbol through the batch scheduler.
type MexcPipeline struct {
	feed  MexcFeed
	batch *batch.Scheduler
}

func NewMexcPipeline(feed MexcFeed, sched *batch.Scheduler) *MexcPipeline {
	return &MexcPipeline{feed: feed, batch: sched}
}

func (p *MexcPipeline) Exchange() string {
	return p.feed.Name()
}

func (p *MexcPipeline) Collect(ctx context.Context, pass Pass) ([]models.IngestRow, error) {
	tickers, err := p.feed.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("mexc universe: %w", err)
	}

	marks := make(map[string]*int64, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, dup := marks[t.Symbol]; dup {
			continue
		}
		marks[t.Symbol] = fixedpoint.PriceToScaled(t.MarkPrice())
		symbols = append(symbols, t.Symbol)
	}
	sort.Strings(symbols)

	rows, stats := batch.Collect(ctx, p.batch, pass.Started, symbols,
		func(ctx context.Context, sym string) (models.IngestRow, error) {
			f, err := p.feed.FetchFunding(ctx, sym)
			if err != nil {
				return models.IngestRow{}, err
			}
			return mexcRow(sym, f, marks[sym], pass.RetrievedAtMs), nil
		})

	if stats.Failed > 0 {
		metrics.SymbolFailures.WithLabelValues(p.feed.Name()).Add(float64(stats.Failed))
	}

	log.Info().
		Str("run", pass.RunID).
		Int("symbols", len(symbols)).
		Int("selected", stats.Selected).
		Int("fetched", stats.Succeeded).
		Int("failed", stats.Failed).
		Int("chunks", stats.Chunks).
		Bool("truncated", stats.Truncated).
		Int("cursor", p.batch.Cursor()).
		Msg("mexc batch collected")

	return rows, nil
}
