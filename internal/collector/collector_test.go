package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/suwandre/fundarb/internal/batch"
	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/ingest"
	"github.com/suwandre/fundarb/internal/models"
	"github.com/suwandre/fundarb/internal/store"
)

type fakeBulk struct {
	name string
	rows []exchange.BulkFunding
	err  error
}

func (f fakeBulk) Name() string { return f.name }

func (f fakeBulk) FetchFunding(context.Context) ([]exchange.BulkFunding, error) {
	return f.rows, f.err
}

type fakeMexc struct {
	tickers    []exchange.MexcTicker
	tickersErr error
	funding    map[string]*exchange.MexcFunding
}

func (f *fakeMexc) Name() string { return "mexc" }

func (f *fakeMexc) Tickers(context.Context) ([]exchange.MexcTicker, error) {
	return f.tickers, f.tickersErr
}

func (f *fakeMexc) FetchFunding(_ context.Context, sym string) (*exchange.MexcFunding, error) {
	if fr, ok := f.funding[sym]; ok {
		return fr, nil
	}
	return nil, errors.New("not listed")
}

type recordingIngester struct {
	calls [][]models.IngestRow
	fail  map[string]error
}

func (r *recordingIngester) Ingest(_ context.Context, rows []models.IngestRow) (int, error) {
	r.calls = append(r.calls, rows)
	if len(rows) > 0 {
		if err := r.fail[rows[0].ExchangeCode]; err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func newBatch(t *testing.T) *batch.Scheduler {
	t.Helper()
	s, err := batch.New(batch.Config{BatchSize: 250, RPS: 50, Workers: 5, Budget: time.Minute})
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return s
}

func asterFeed() fakeBulk {
	return fakeBulk{name: "aster", rows: []exchange.BulkFunding{
		{Symbol: "btcusdt", MarkPrice: "65000", FundingRate: "0.0003", NextFundingTime: 1700000000000, IntervalHours: 8},
		{Symbol: "ETHUSDT", MarkPrice: "bad", FundingRate: "-0.0001", NextFundingTime: 1700000000000, IntervalHours: 4},
	}}
}

func mexcFeed() *fakeMexc {
	return &fakeMexc{
		tickers: []exchange.MexcTicker{
			{Symbol: "ETH_USDT", LastPrice: "3000"},
			{Symbol: "BTC_USDT", FairPrice: "65001", LastPrice: "65000"},
			{Symbol: "DOGE_USDT", LastPrice: "0.1"},
		},
		funding: map[string]*exchange.MexcFunding{
			"BTC_USDT": {Symbol: "BTC_USDT", FundingRate: "-0.0001", CollectCycle: 8, NextSettleTime: 1700000000000},
			"ETH_USDT": {Symbol: "ETH_USDT", FundingRate: "0.0002", CollectCycle: 8, NextSettleTime: 1700000000000},
		},
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct{ code, in, want string }{
		{"mexc", "BTC_USDT", "BTCUSDT"},
		{"mexc", " eth_usdt ", "ETHUSDT"},
		{"aster", "btcusdt", "BTCUSDT"},
		{"binance", "1000PEPEUSDT", "1000PEPEUSDT"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.code, tc.in); got != tc.want {
			t.Fatalf("Canonical(%q, %q) = %q, want %q", tc.code, tc.in, got, tc.want)
		}
	}
}

func TestRunOnceSharesRetrievalTimestamp(t *testing.T) {
	ing := &recordingIngester{}
	c := New(ing, NewBulkPipeline(asterFeed()), NewMexcPipeline(mexcFeed(), newBatch(t)))
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	res, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.RetrievedAtMs != fixed.UnixMilli() {
		t.Fatalf("RetrievedAtMs = %d, want %d", res.RetrievedAtMs, fixed.UnixMilli())
	}
	if res.Counts["aster"] != 2 || res.Counts["mexc"] != 2 {
		t.Fatalf("counts = %v, want aster=2 mexc=2", res.Counts)
	}

	for _, call := range ing.calls {
		for _, r := range call {
			if r.RetrievedAtMs != fixed.UnixMilli() {
				t.Fatalf("row %+v has a different retrieval time", r)
			}
		}
	}
}

func TestRunOnceNormalizesRows(t *testing.T) {
	ing := &recordingIngester{}
	c := New(ing, NewBulkPipeline(asterFeed()), NewMexcPipeline(mexcFeed(), newBatch(t)))

	if _, err := c.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	aster := ing.calls[0]
	if aster[0].Canonical != "BTCUSDT" || aster[0].FundingRateScaled != 30000 || aster[0].MarkPriceScaled == nil || *aster[0].MarkPriceScaled != 6500000000000 {
		t.Fatalf("aster row = %+v", aster[0])
	}
	if aster[1].MarkPriceScaled != nil {
		t.Fatal("unparsable mark price should be nil")
	}

	mexc := ing.calls[1]
	// sorted universe: BTC_USDT, DOGE_USDT (fails), ETH_USDT
	if len(mexc) != 2 || mexc[0].Canonical != "BTCUSDT" || mexc[1].Canonical != "ETHUSDT" {
		t.Fatalf("mexc rows = %+v", mexc)
	}
	if mexc[0].MarkPriceScaled == nil || *mexc[0].MarkPriceScaled != 6500100000000 {
		t.Fatal("mexc mark price should come from the fair price")
	}
	if mexc[0].FundingRateScaled != -10000 || mexc[0].IntervalHours != 8 || mexc[0].FundingTimeMs != 1700000000000 {
		t.Fatalf("mexc row = %+v", mexc[0])
	}
}

func TestRunOnceIsolatesVenueFailures(t *testing.T) {
	ing := &recordingIngester{}
	broken := fakeBulk{name: "aster", err: &exchange.StatusError{What: "aster funding", Code: 502}}
	mexc := mexcFeed()

	c := New(ing, NewBulkPipeline(broken), NewMexcPipeline(mexc, newBatch(t)))
	res, err := c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("fetch failures must not surface as errors: %v", err)
	}
	if res.Counts["aster"] != 0 || res.Counts["mexc"] != 2 {
		t.Fatalf("counts = %v", res.Counts)
	}

	mexc.tickersErr = errors.New("tickers down")
	c = New(ing, NewBulkPipeline(asterFeed()), NewMexcPipeline(mexc, newBatch(t)))
	res, err = c.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Counts["aster"] != 2 || res.Counts["mexc"] != 0 {
		t.Fatalf("counts = %v", res.Counts)
	}
}

func TestRunOnceReportsIngestFailuresAfterAllVenues(t *testing.T) {
	dbErr := errors.New("db down")
	ing := &recordingIngester{fail: map[string]error{"aster": dbErr}}

	c := New(ing, NewBulkPipeline(asterFeed()), NewMexcPipeline(mexcFeed(), newBatch(t)))
	res, err := c.RunOnce(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected joined ingest error, got %v", err)
	}
	if res.Counts["mexc"] != 2 {
		t.Fatalf("mexc should still ingest, counts = %v", res.Counts)
	}
}

func TestRunOnceEndToEndIntoStore(t *testing.T) {
	ctx := context.Background()
	repo := store.NewMemory()
	_ = repo.SeedExchanges(ctx, store.DefaultExchanges)

	c := New(ingest.NewService(repo), NewBulkPipeline(asterFeed()), NewMexcPipeline(mexcFeed(), newBatch(t)))
	for range 2 {
		if _, err := c.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce: %v", err)
		}
	}

	if got := len(repo.Snapshots()); got != 4 {
		t.Fatalf("stored %d snapshots after two passes, want 4", got)
	}
}
