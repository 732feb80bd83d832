package exchange

import (
	"context"
	"fmt"
	"net/http"
)

const DefaultBybitTickersURL = "https://api.bybit.com/v5/market/tickers?category=linear"

type BybitAdapter struct {
	tickersURL string
	httpClient *http.Client
}

type bybitTicker struct {
	Symbol              string        `json:"symbol"`
	MarkPrice           DecimalString `json:"markPrice"`
	FundingRate         DecimalString `json:"fundingRate"`
	NextFundingTime     FlexInt       `json:"nextFundingTime"` // Unix ms string
	FundingIntervalHour FlexInt       `json:"fundingIntervalHour"`
}

func NewBybitAdapter(tickersURL string, httpClient *http.Client) *BybitAdapter {
	if tickersURL == "" {
		tickersURL = DefaultBybitTickersURL
	}
	return &BybitAdapter{tickersURL: tickersURL, httpClient: httpClient}
}

func (b *BybitAdapter) Name() string {
	return "bybit"
}

func (b *BybitAdapter) FetchFunding(ctx context.Context) ([]BulkFunding, error) {
	var raw struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
		Result  struct {
			List []bybitTicker `json:"list"`
		} `json:"result"`
		Time FlexInt `json:"time"`
	}

	if err := getJSON(ctx, b.httpClient, "bybit tickers", b.tickersURL, &raw); err != nil {
		return nil, err
	}

	if raw.RetCode != 0 {
		return nil, fmt.Errorf("bybit tickers: %w %d: %s", ErrUnsuccessful, raw.RetCode, raw.RetMsg)
	}

	out := make([]BulkFunding, 0, len(raw.Result.List))
	for _, t := range raw.Result.List {
		if t.Symbol == "" || t.FundingRate == "" {
			continue
		}
		out = append(out, BulkFunding{
			Symbol:          t.Symbol,
			MarkPrice:       string(t.MarkPrice),
			FundingRate:     string(t.FundingRate),
			NextFundingTime: int64(t.NextFundingTime),
			IntervalHours:   int(t.FundingIntervalHour),
			ObservedTime:    int64(raw.Time),
		})
	}
	return out, nil
}
