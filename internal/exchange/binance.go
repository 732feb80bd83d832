package exchange

import (
	"context"
	"net/http"
)

const (
	DefaultBinancePremiumURL     = "https://fapi.binance.com/fapi/v1/premiumIndex"
	DefaultBinanceFundingInfoURL = "https://fapi.binance.com/fapi/v1/fundingInfo"
)

// BinanceAdapter reads USDⓈ-M perpetual funding for all symbols at once.
type BinanceAdapter struct {
	premiumURL     string
	fundingInfoURL string
	httpClient     *http.Client
}

func NewBinanceAdapter(premiumURL, fundingInfoURL string, httpClient *http.Client) *BinanceAdapter {
	if premiumURL == "" {
		premiumURL = DefaultBinancePremiumURL
	}
	if fundingInfoURL == "" {
		fundingInfoURL = DefaultBinanceFundingInfoURL
	}
	return &BinanceAdapter{
		premiumURL:     premiumURL,
		fundingInfoURL: fundingInfoURL,
		httpClient:     httpClient,
	}
}

func (b *BinanceAdapter) Name() string {
	return "binance"
}

// premiumIndex has no interval; fundingInfo only lists symbols whose interval
// was changed from the default 8h.
func (b *BinanceAdapter) FetchFunding(ctx context.Context) ([]BulkFunding, error) {
	var premium []struct {
		Symbol          string        `json:"symbol"`
		MarkPrice       DecimalString `json:"markPrice"`
		LastFundingRate DecimalString `json:"lastFundingRate"`
		NextFundingTime FlexInt       `json:"nextFundingTime"`
		Time            FlexInt       `json:"time"`
	}
	if err := getJSON(ctx, b.httpClient, "binance premium index", b.premiumURL, &premium); err != nil {
		return nil, err
	}

	var info []struct {
		Symbol               string  `json:"symbol"`
		FundingIntervalHours FlexInt `json:"fundingIntervalHours"`
	}
	if err := getJSON(ctx, b.httpClient, "binance funding info", b.fundingInfoURL, &info); err != nil {
		return nil, err
	}

	intervals := make(map[string]int, len(info))
	for _, it := range info {
		if it.FundingIntervalHours > 0 {
			intervals[it.Symbol] = int(it.FundingIntervalHours)
		}
	}

	out := make([]BulkFunding, 0, len(premium))
	for _, p := range premium {
		// delivery contracts show up with an empty rate
		if p.Symbol == "" || p.LastFundingRate == "" {
			continue
		}
		interval, ok := intervals[p.Symbol]
		if !ok {
			interval = 8
		}
		out = append(out, BulkFunding{
			Symbol:          p.Symbol,
			MarkPrice:       string(p.MarkPrice),
			FundingRate:     string(p.LastFundingRate),
			NextFundingTime: int64(p.NextFundingTime),
			IntervalHours:   interval,
			ObservedTime:    int64(p.Time),
		})
	}
	return out, nil
}
