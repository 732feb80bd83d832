// Package arbitrage pairs fresh funding snapshots of the same instrument
// across venues and ranks the spread between the cheapest and richest leg.
package arbitrage

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"github.com/suwandre/fundarb/internal/fixedpoint"
	"github.com/suwandre/fundarb/internal/metrics"
	"github.com/suwandre/fundarb/internal/models"
)

const (
	// MaxSkew is the widest gap allowed between the two legs' funding times.
	MaxSkew              = 10 * time.Minute
	DefaultIntervalHours = 8
)

type Reader interface {
	SnapshotsSince(ctx context.Context, minRetrievedAtMs int64) ([]models.SnapshotView, error)
}

// Staleness holds the freshness ceiling per exchange code.
type Staleness struct {
	Default   time.Duration
	Overrides map[string]time.Duration
}

func (s Staleness) For(code string) time.Duration {
	if d, ok := s.Overrides[code]; ok {
		return d
	}
	return s.Default
}

// Lookback is the widest ceiling, used to bound the initial read.
func (s Staleness) Lookback() time.Duration {
	widest := s.Default
	for _, d := range s.Overrides {
		widest = max(widest, d)
	}
	return widest
}

type Leg struct {
	Exchange      string  `json:"exchange"`
	FundingPct    float64 `json:"fundingPct"`
	IntervalHours int     `json:"intervalHours"`
	FundingTimeMs int64   `json:"fundingTimeMs"`
	RetrievedAtMs int64   `json:"retrievedAtMs"`
	AgeSec        int64   `json:"ageSec"`
}

type Row struct {
	Symbol         string   `json:"symbol"`
	Long           Leg      `json:"long"`
	Short          Leg      `json:"short"`
	DiffPctPerHour float64  `json:"diffPctPerHour"`
	DailyPct       float64  `json:"dailyPct"`
	FundingSkewSec int64    `json:"fundingSkewSec"`
	MarkPrice      *float64 `json:"markPrice"`
}

type Page struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int   `json:"total"`
	Data  []Row `json:"data"`
}

type Detector struct {
	reader    Reader
	staleness Staleness
	maxSkew   time.Duration
	now       func() time.Time
}

func New(reader Reader, staleness Staleness) *Detector {
	return &Detector{
		reader:    reader,
		staleness: staleness,
		maxSkew:   MaxSkew,
		now:       time.Now,
	}
}

// Find computes every current opportunity, then returns the requested page.
func (d *Detector) Find(ctx context.Context, q Query) (Page, error) {
	now := d.now()
	nowMs := now.UnixMilli()

	views, err := d.reader.SnapshotsSince(ctx, nowMs-d.staleness.Lookback().Milliseconds())
	if err != nil {
		return Page{}, fmt.Errorf("arbitrage: load snapshots: %w", err)
	}

	groups := make(map[string][]models.SnapshotView)
	for _, v := range views {
		if v.ExchangeCode == "" || v.Canonical == "" {
			continue
		}
		if nowMs-v.RetrievedAtMs > d.staleness.For(v.ExchangeCode).Milliseconds() {
			continue
		}
		groups[v.Canonical] = append(groups[v.Canonical], v)
	}

	minDaily := decimal.NewFromFloat(q.Min)
	rows := make([]Row, 0, len(groups))
	for symbol, group := range groups {
		legs := matchSnapshots(group)
		if len(legs) < 2 {
			continue
		}
		row, ok := d.evaluate(symbol, legs, nowMs, minDaily)
		if ok {
			rows = append(rows, row)
		}
	}

	slices.SortFunc(rows, func(a, b Row) int {
		if c := cmp.Compare(b.DailyPct, a.DailyPct); c != 0 {
			return c
		}
		return cmp.Compare(a.Symbol, b.Symbol)
	})

	metrics.Opportunities.Set(float64(len(rows)))

	return paginate(rows, q), nil
}

func (d *Detector) evaluate(symbol string, legs []models.SnapshotView, nowMs int64, minDaily decimal.Decimal) (Row, bool) {
	rates := make([]decimal.Decimal, len(legs))
	hi, lo := 0, 0
	for i, l := range legs {
		rates[i] = ratePctPerHour(l)
		if rates[i].GreaterThan(rates[hi]) {
			hi = i
		}
		if rates[i].LessThan(rates[lo]) {
			lo = i
		}
	}
	// flat board: every leg has the same rate
	if hi == lo {
		lo = 1
		if hi == 1 {
			lo = 0
		}
	}
	short, long := legs[hi], legs[lo]

	skewMs := short.FundingTimeMs - long.FundingTimeMs
	if skewMs < 0 {
		skewMs = -skewMs
	}
	if skewMs > d.maxSkew.Milliseconds() {
		return Row{}, false
	}

	diff := rates[hi].Sub(rates[lo])
	daily := diff.Mul(decimal.NewFromInt(24))
	if daily.LessThan(minDaily) {
		return Row{}, false
	}

	mark := fixedpoint.PricePtr(short.MarkPriceScaled)
	if mark == nil {
		mark = fixedpoint.PricePtr(long.MarkPriceScaled)
	}

	return Row{
		Symbol:         symbol,
		Long:           toLeg(long, nowMs),
		Short:          toLeg(short, nowMs),
		DiffPctPerHour: diff.InexactFloat64(),
		DailyPct:       daily.InexactFloat64(),
		FundingSkewSec: roundSec(skewMs),
		MarkPrice:      mark,
	}, true
}

// matchSnapshots picks one snapshot per exchange that can be compared. It
// prefers the funding-time bucket covering the most exchanges, later time on
// ties, and falls back to each exchange's latest row. Result is ordered by
// exchange code.
func matchSnapshots(group []models.SnapshotView) []models.SnapshotView {
	buckets := make(map[int64][]models.SnapshotView)
	for _, v := range group {
		buckets[v.FundingTimeMs] = append(buckets[v.FundingTimeMs], v)
	}

	var bestTime int64
	bestCount := -1
	for ft, rows := range buckets {
		n := distinctExchanges(rows)
		if n > bestCount || (n == bestCount && ft > bestTime) {
			bestTime, bestCount = ft, n
		}
	}

	legs := latestPerExchange(buckets[bestTime])
	if len(legs) < 2 {
		legs = latestPerExchange(group)
	}
	return legs
}

func distinctExchanges(rows []models.SnapshotView) int {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.ExchangeCode] = struct{}{}
	}
	return len(seen)
}

func latestPerExchange(rows []models.SnapshotView) []models.SnapshotView {
	latest := make(map[string]models.SnapshotView, len(rows))
	for _, r := range rows {
		cur, ok := latest[r.ExchangeCode]
		if !ok || r.RetrievedAtMs > cur.RetrievedAtMs || (r.RetrievedAtMs == cur.RetrievedAtMs && r.ID > cur.ID) {
			latest[r.ExchangeCode] = r
		}
	}

	out := make([]models.SnapshotView, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b models.SnapshotView) int {
		return cmp.Compare(a.ExchangeCode, b.ExchangeCode)
	})
	return out
}

func intervalHours(v models.SnapshotView) int {
	if v.IntervalHours <= 0 {
		return DefaultIntervalHours
	}
	return v.IntervalHours
}

func ratePctPerHour(v models.SnapshotView) decimal.Decimal {
	pct := decimal.New(v.FundingRateScaled, -int32(fixedpoint.Funding)).Shift(2)
	return pct.Div(decimal.NewFromInt(int64(intervalHours(v))))
}

func toLeg(v models.SnapshotView, nowMs int64) Leg {
	return Leg{
		Exchange:      v.ExchangeCode,
		FundingPct:    fixedpoint.FundingPct(v.FundingRateScaled),
		IntervalHours: intervalHours(v),
		FundingTimeMs: v.FundingTimeMs,
		RetrievedAtMs: v.RetrievedAtMs,
		AgeSec:        roundSec(nowMs - v.RetrievedAtMs),
	}
}

// roundSec rounds milliseconds to whole seconds, halves up.
func roundSec(ms int64) int64 {
	return int64(math.Floor(float64(ms)/1000 + 0.5))
}

func paginate(rows []Row, q Query) Page {
	p := Page{Page: q.Page, Limit: q.Limit, Total: len(rows), Data: []Row{}}

	start := (q.Page - 1) * q.Limit
	if start < 0 || start >= len(rows) {
		return p
	}
	end := min(start+q.Limit, len(rows))
	p.Data = rows[start:end]
	return p
}
