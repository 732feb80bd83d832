package arbitrage

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/suwandre/fundarb/internal/models"
)

var testNow = time.UnixMilli(1_700_000_000_000)

type sliceReader struct {
	views    []models.SnapshotView
	err      error
	minAsked int64
}

func (r *sliceReader) SnapshotsSince(_ context.Context, minMs int64) ([]models.SnapshotView, error) {
	r.minAsked = minMs
	if r.err != nil {
		return nil, r.err
	}
	var out []models.SnapshotView
	for _, v := range r.views {
		if v.RetrievedAtMs >= minMs {
			out = append(out, v)
		}
	}
	return out, nil
}

var nextID int64

// snap builds a view retrieved ageSec before testNow. rate is in percent.
func snap(code, symbol string, ratePct float64, fundingTimeMs int64, ageSec int64) models.SnapshotView {
	nextID++
	mark := int64(6_500_000_000_000)
	return models.SnapshotView{
		FundingSnapshot: models.FundingSnapshot{
			ID:                nextID,
			FundingTimeMs:     fundingTimeMs,
			IntervalHours:     8,
			FundingRateScaled: int64(math.Round(ratePct * 1e6)),
			MarkPriceScaled:   &mark,
			RetrievedAtMs:     testNow.UnixMilli() - ageSec*1000,
		},
		ExchangeCode: code,
		Canonical:    symbol,
	}
}

func newDetector(views ...models.SnapshotView) (*Detector, *sliceReader) {
	r := &sliceReader{views: views}
	d := New(r, Staleness{
		Default:   3 * time.Minute,
		Overrides: map[string]time.Duration{"mexc": 4 * time.Minute, "aster": 2 * time.Minute},
	})
	d.now = func() time.Time { return testNow }
	return d, r
}

func allRows() Query {
	return Query{Page: 1, Limit: MaxLimit}
}

const ft = int64(1_700_006_400_000)

func TestFindExampleScenario(t *testing.T) {
	d, _ := newDetector(
		snap("aster", "BTCUSDT", 0.03, ft, 10),
		snap("mexc", "BTCUSDT", -0.01, ft, 20),
	)

	page, err := d.Find(context.Background(), Query{Page: 1, Limit: 20, Min: 0.1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 1 {
		t.Fatalf("page = %+v, want one row", page)
	}

	row := page.Data[0]
	if row.Short.Exchange != "aster" || row.Long.Exchange != "mexc" {
		t.Fatalf("short=%s long=%s, want short=aster long=mexc", row.Short.Exchange, row.Long.Exchange)
	}
	if row.DiffPctPerHour != 0.005 || row.DailyPct != 0.12 {
		t.Fatalf("diff=%v daily=%v, want 0.005 / 0.12", row.DiffPctPerHour, row.DailyPct)
	}
	if row.Short.FundingPct != 0.03 || row.Long.FundingPct != -0.01 {
		t.Fatalf("funding pct short=%v long=%v", row.Short.FundingPct, row.Long.FundingPct)
	}
	if row.Short.AgeSec != 10 || row.Long.AgeSec != 20 || row.FundingSkewSec != 0 {
		t.Fatalf("ages/skew = %d %d %d", row.Short.AgeSec, row.Long.AgeSec, row.FundingSkewSec)
	}
	if row.MarkPrice == nil || *row.MarkPrice != 65000 {
		t.Fatalf("markPrice = %v, want 65000", row.MarkPrice)
	}

	page, _ = d.Find(context.Background(), Query{Page: 1, Limit: 20, Min: 0.2})
	if page.Total != 0 {
		t.Fatalf("min=0.2 should exclude the row, got %+v", page)
	}
}

func TestFindBoundsInitialReadByWidestThreshold(t *testing.T) {
	d, r := newDetector()
	if _, err := d.Find(context.Background(), allRows()); err != nil {
		t.Fatalf("Find: %v", err)
	}
	if want := testNow.Add(-4 * time.Minute).UnixMilli(); r.minAsked != want {
		t.Fatalf("lookback min = %d, want %d", r.minAsked, want)
	}
}

func TestFindAppliesPerExchangeStaleness(t *testing.T) {
	// aster ceiling is 2m: a 150s-old aster row is inside the 4m lookback but stale.
	d, _ := newDetector(
		snap("aster", "BTCUSDT", 0.05, ft, 150),
		snap("mexc", "BTCUSDT", 0.01, ft, 200),
		snap("binance", "BTCUSDT", -0.01, ft, 170),
	)
	page, _ := d.Find(context.Background(), allRows())
	if page.Total != 1 {
		t.Fatalf("total = %d, want 1", page.Total)
	}
	row := page.Data[0]
	if row.Short.Exchange != "mexc" || row.Long.Exchange != "binance" {
		t.Fatalf("short=%s long=%s, stale aster leg must be excluded", row.Short.Exchange, row.Long.Exchange)
	}

	// mexc at 241s is beyond its own 4m ceiling
	d, _ = newDetector(
		snap("mexc", "BTCUSDT", 0.05, ft, 241),
		snap("binance", "BTCUSDT", -0.01, ft, 10),
	)
	if page, _ := d.Find(context.Background(), allRows()); page.Total != 0 {
		t.Fatalf("stale mexc row should leave a single leg, got %+v", page)
	}
}

func TestMatchPrefersCoverageThenLaterFundingTime(t *testing.T) {
	early, late := ft, ft+8*3600*1000

	// late bucket covers two venues, early covers three
	d, _ := newDetector(
		snap("aster", "ETHUSDT", 0.02, early, 5),
		snap("binance", "ETHUSDT", 0.01, early, 5),
		snap("bybit", "ETHUSDT", -0.01, early, 5),
		snap("aster", "ETHUSDT", 0.09, late, 1),
		snap("mexc", "ETHUSDT", -0.09, late, 1),
	)
	page, _ := d.Find(context.Background(), allRows())
	row := page.Data[0]
	if row.Short.FundingTimeMs != early || row.Long.FundingTimeMs != early {
		t.Fatalf("picked %d/%d, want the three-venue bucket", row.Short.FundingTimeMs, row.Long.FundingTimeMs)
	}
	if row.Short.Exchange != "aster" || row.Long.Exchange != "bybit" {
		t.Fatalf("short=%s long=%s", row.Short.Exchange, row.Long.Exchange)
	}

	// equal coverage: later funding time wins
	d, _ = newDetector(
		snap("aster", "ETHUSDT", 0.02, early, 5),
		snap("binance", "ETHUSDT", -0.02, early, 5),
		snap("bybit", "ETHUSDT", 0.01, late, 5),
		snap("mexc", "ETHUSDT", -0.01, late, 5),
	)
	page, _ = d.Find(context.Background(), allRows())
	row = page.Data[0]
	if row.Short.Exchange != "bybit" || row.Long.Exchange != "mexc" {
		t.Fatalf("short=%s long=%s, want the later bucket", row.Short.Exchange, row.Long.Exchange)
	}
}

func TestMatchFallsBackToLatestPerExchange(t *testing.T) {
	// each venue sits alone in its bucket, within the skew ceiling
	d, _ := newDetector(
		snap("aster", "SOLUSDT", 0.04, ft, 30),
		snap("mexc", "SOLUSDT", -0.02, ft+60_000, 30),
	)
	page, _ := d.Find(context.Background(), allRows())
	if page.Total != 1 {
		t.Fatalf("fallback should pair the venues, got %+v", page)
	}
	if page.Data[0].FundingSkewSec != 60 {
		t.Fatalf("skew = %d, want 60", page.Data[0].FundingSkewSec)
	}
}

func TestMatchBucketsZeroFundingTime(t *testing.T) {
	// venues that omit the next funding time still share a bucket
	d, _ := newDetector(
		snap("aster", "BTCUSDT", 0.03, 0, 30),
		snap("binance", "BTCUSDT", -0.01, 0, 30),
		snap("bybit", "BTCUSDT", 0.05, ft, 30),
	)
	page, err := d.Find(context.Background(), allRows())
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Total = %d, want 1", page.Total)
	}
	row := page.Data[0]
	if row.Short.Exchange != "aster" || row.Long.Exchange != "binance" {
		t.Fatalf("short/long = %s/%s, want aster/binance", row.Short.Exchange, row.Long.Exchange)
	}
	if row.Short.FundingTimeMs != 0 || row.Long.FundingTimeMs != 0 || row.FundingSkewSec != 0 {
		t.Fatalf("row = %+v, want both legs at funding time 0", row)
	}
}

func TestFindRejectsWideSkew(t *testing.T) {
	d, _ := newDetector(
		snap("aster", "SOLUSDT", 0.5, ft, 30),
		snap("mexc", "SOLUSDT", -0.5, ft+10*60_000+1, 30),
	)
	if page, _ := d.Find(context.Background(), allRows()); page.Total != 0 {
		t.Fatalf("skew over 10m must be rejected, got %+v", page)
	}

	d, _ = newDetector(
		snap("aster", "SOLUSDT", 0.5, ft, 30),
		snap("mexc", "SOLUSDT", -0.5, ft+10*60_000, 30),
	)
	if page, _ := d.Find(context.Background(), allRows()); page.Total != 1 {
		t.Fatalf("skew of exactly 10m is allowed, got %+v", page)
	}
}

func TestFindNormalizesByInterval(t *testing.T) {
	a := snap("aster", "XRPUSDT", 0.04, ft, 5)
	a.IntervalHours = 4 // 0.01%/h
	b := snap("bybit", "XRPUSDT", 0.04, ft, 5)
	b.IntervalHours = 0 // defaults to 8h, 0.005%/h

	d, _ := newDetector(a, b)
	page, _ := d.Find(context.Background(), allRows())
	row := page.Data[0]
	if row.Short.Exchange != "aster" || row.Long.IntervalHours != 8 {
		t.Fatalf("row = %+v", row)
	}
	if row.DailyPct != 0.12 {
		t.Fatalf("daily = %v, want 0.12", row.DailyPct)
	}
}

func TestFindTiesResolveByExchangeCode(t *testing.T) {
	d, _ := newDetector(
		snap("mexc", "ADAUSDT", 0.01, ft, 5),
		snap("bybit", "ADAUSDT", 0.01, ft, 5),
		snap("aster", "ADAUSDT", 0.01, ft, 5),
	)
	for range 5 {
		page, _ := d.Find(context.Background(), allRows())
		row := page.Data[0]
		if row.Short.Exchange != "aster" || row.Long.Exchange != "bybit" || row.DailyPct != 0 {
			t.Fatalf("flat board row = %+v", row)
		}
	}
}

func TestFindMarkPriceFallsBackToLongLeg(t *testing.T) {
	short := snap("aster", "BTCUSDT", 0.03, ft, 5)
	short.MarkPriceScaled = nil
	long := snap("mexc", "BTCUSDT", -0.01, ft, 5)
	price := int64(6_400_050_000_000)
	long.MarkPriceScaled = &price

	d, _ := newDetector(short, long)
	page, _ := d.Find(context.Background(), allRows())
	if mp := page.Data[0].MarkPrice; mp == nil || *mp != 64000.5 {
		t.Fatalf("markPrice = %v, want 64000.5", mp)
	}

	long.MarkPriceScaled = nil
	d, _ = newDetector(short, long)
	page, _ = d.Find(context.Background(), allRows())
	if page.Data[0].MarkPrice != nil {
		t.Fatal("markPrice should be null when neither leg has one")
	}
}

func rankedBoard() []models.SnapshotView {
	var views []models.SnapshotView
	for i, sym := range []string{"AAAUSDT", "BBBUSDT", "CCCUSDT", "DDDUSDT", "EEEUSDT"} {
		spread := float64(i%3) * 0.01
		views = append(views,
			snap("aster", sym, spread, ft, 5),
			snap("mexc", sym, 0, ft, 5),
		)
	}
	views = append(views, snap("aster", "LONEUSDT", 1, ft, 5))
	return views
}

func TestFindRanksAndPaginatesStably(t *testing.T) {
	d, _ := newDetector(rankedBoard()...)

	full, _ := d.Find(context.Background(), allRows())
	if full.Total != 5 {
		t.Fatalf("total = %d, single-venue instrument must be skipped", full.Total)
	}
	for i := 1; i < len(full.Data); i++ {
		if full.Data[i].DailyPct > full.Data[i-1].DailyPct {
			t.Fatalf("rows not ranked: %+v", full.Data)
		}
	}
	// spreads: AAA/DDD 0, BBB/EEE 0.01, CCC 0.02; ties by symbol
	want := []string{"CCCUSDT", "BBBUSDT", "EEEUSDT", "AAAUSDT", "DDDUSDT"}
	for i, sym := range want {
		if full.Data[i].Symbol != sym {
			t.Fatalf("rank %d = %s, want %s", i, full.Data[i].Symbol, sym)
		}
	}

	var paged []string
	for p := 1; p <= 3; p++ {
		page, _ := d.Find(context.Background(), Query{Page: p, Limit: 2})
		if page.Total != 5 || page.Page != p || page.Limit != 2 {
			t.Fatalf("page %d header = %+v", p, page)
		}
		for _, r := range page.Data {
			paged = append(paged, r.Symbol)
		}
	}
	if len(paged) != len(want) {
		t.Fatalf("paged = %v", paged)
	}
	for i := range want {
		if paged[i] != want[i] {
			t.Fatalf("paged = %v, want %v", paged, want)
		}
	}
}

func TestFindEmptyPageSerializesAsArray(t *testing.T) {
	d, _ := newDetector(rankedBoard()...)
	page, err := d.Find(context.Background(), Query{Page: 9, Limit: 20})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if page.Total != 5 {
		t.Fatalf("total = %d, want 5", page.Total)
	}

	raw, _ := json.Marshal(page)
	var decoded map[string]json.RawMessage
	_ = json.Unmarshal(raw, &decoded)
	if string(decoded["data"]) != "[]" {
		t.Fatalf("data = %s, want []", decoded["data"])
	}

	d, _ = newDetector()
	page, _ = d.Find(context.Background(), allRows())
	if page.Data == nil || page.Total != 0 {
		t.Fatalf("empty board page = %+v", page)
	}
}

func TestFindPropagatesReaderErrors(t *testing.T) {
	d, r := newDetector()
	r.err = errors.New("db down")
	if _, err := d.Find(context.Background(), allRows()); !errors.Is(err, r.err) {
		t.Fatalf("err = %v", err)
	}
}
