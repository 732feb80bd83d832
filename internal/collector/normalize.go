package collector

import (
	"strings"

	"github.com/suwandre/fundarb/internal/exchange"
	"github.com/suwandre/fundarb/internal/fixedpoint"
	"github.com/suwandre/fundarb/internal/models"
)

// Canonical maps a venue symbol to the exchange-agnostic form, e.g.
// mexc BTC_USDT -> BTCUSDT.
func Canonical(exchangeCode, symbol string) string {
	s := strings.TrimSpace(symbol)
	if exchangeCode == "mexc" {
		s = strings.ReplaceAll(s, "_", "")
	}
	return strings.ToUpper(s)
}

func optionalMs(ms int64) *int64 {
	if ms <= 0 {
		return nil
	}
	return &ms
}

func bulkRow(code string, r exchange.BulkFunding, retrievedAtMs int64) models.IngestRow {
	return models.IngestRow{
		ExchangeCode:      code,
		Canonical:         Canonical(code, r.Symbol),
		FundingRateScaled: fixedpoint.FundingToScaled(r.FundingRate),
		FundingTimeMs:     r.NextFundingTime,
		IntervalHours:     r.IntervalHours,
		MarkPriceScaled:   fixedpoint.PriceToScaled(r.MarkPrice),
		NextFundingTimeMs: optionalMs(r.NextFundingTime),
		RetrievedAtMs:     retrievedAtMs,
	}
}

func mexcRow(symbol string, f *exchange.MexcFunding, mark *int64, retrievedAtMs int64) models.IngestRow {
	if f.Symbol != "" {
		symbol = f.Symbol
	}
	return models.IngestRow{
		ExchangeCode:      "mexc",
		Canonical:         Canonical("mexc", symbol),
		FundingRateScaled: fixedpoint.FundingToScaled(string(f.FundingRate)),
		FundingTimeMs:     int64(f.NextSettleTime),
		IntervalHours:     int(f.CollectCycle),
		MarkPriceScaled:   mark,
		NextFundingTimeMs: optionalMs(int64(f.NextSettleTime)),
		RetrievedAtMs:     retrievedAtMs,
	}
}
