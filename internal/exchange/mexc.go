package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

type MexcAdapter struct {
	tickersURL  string
	fundingBase string
	httpClient  *http.Client
}

type MexcTicker struct {
	Symbol     string        `json:"symbol"`
	LastPrice  DecimalString `json:"lastPrice"`
	FairPrice  DecimalString `json:"fairPrice"`
	IndexPrice DecimalString `json:"indexPrice"`
}

// MarkPrice prefers the fair price and falls back to the last trade.
func (t MexcTicker) MarkPrice() string {
	if t.FairPrice != "" {
		return string(t.FairPrice)
	}
	return string(t.LastPrice)
}

type MexcFunding struct {
	Symbol         string        `json:"symbol"`
	FundingRate    DecimalString `json:"fundingRate"`
	CollectCycle   FlexInt       `json:"collectCycle"` // hours
	NextSettleTime FlexInt       `json:"nextSettleTime"`
	Timestamp      FlexInt       `json:"timestamp"`
}

func NewMexcAdapter(tickersURL, fundingBase string, httpClient *http.Client) (*MexcAdapter, error) {
	if tickersURL == "" || fundingBase == "" {
		return nil, errors.New("missing MEXC_TICKERS_URL or MEXC_FUNDING_BASE")
	}
	return &MexcAdapter{
		tickersURL:  tickersURL,
		fundingBase: fundingBase,
		httpClient:  httpClient,
	}, nil
}

func (m *MexcAdapter) Name() string {
	return "mexc"
}

// Lists every contract ticker. Entries without a symbol are dropped.
func (m *MexcAdapter) Tickers(ctx context.Context) ([]MexcTicker, error) {
	var raw struct {
		Success bool         `json:"success"`
		Code    int          `json:"code"`
		Data    []MexcTicker `json:"data"`
	}

	if err := getJSON(ctx, m.httpClient, "mexc tickers", m.tickersURL, &raw); err != nil {
		return nil, err
	}

	if !raw.Success {
		return nil, fmt.Errorf("mexc tickers: %w (code %d)", ErrUnsuccessful, raw.Code)
	}

	out := make([]MexcTicker, 0, len(raw.Data))
	for _, t := range raw.Data {
		if t.Symbol != "" {
			out = append(out, t)
		}
	}
	return out, nil
}

// Fetches the current funding rate for one contract, e.g. BTC_USDT.
func (m *MexcAdapter) FetchFunding(ctx context.Context, symbol string) (*MexcFunding, error) {
	var raw struct {
		Success bool         `json:"success"`
		Code    int          `json:"code"`
		Data    *MexcFunding `json:"data"`
	}

	what := "mexc funding " + symbol
	if err := getJSON(ctx, m.httpClient, what, m.fundingBase+url.PathEscape(symbol), &raw); err != nil {
		return nil, err
	}

	if !raw.Success || raw.Data == nil {
		return nil, fmt.Errorf("%s: %w (code %d)", what, ErrUnsuccessful, raw.Code)
	}

	return raw.Data, nil
}
