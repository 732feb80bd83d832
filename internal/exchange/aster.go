package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type AsterClient struct {
	fundingURL string
	httpClient *http.Client
}

type asterFunding struct {
	Symbol               string        `json:"symbol"`
	MarkPrice            DecimalString `json:"markPrice"`
	LastFundingRate      DecimalString `json:"lastFundingRate"`
	NextFundingTime      FlexInt       `json:"nextFundingTime"`
	Time                 FlexInt       `json:"time"`
	FundingIntervalHours FlexInt       `json:"fundingIntervalHours"`
}

func NewAsterClient(fundingURL string, httpClient *http.Client) (*AsterClient, error) {
	if fundingURL == "" {
		return nil, errors.New("missing ASTER_FUNDING_URL")
	}
	return &AsterClient{fundingURL: fundingURL, httpClient: httpClient}, nil
}

func (a *AsterClient) Name() string {
	return "aster"
}

// Fetches the whole funding board in one call. The feed is either a bare
// array or wrapped in a {"data": [...]} envelope.
func (a *AsterClient) FetchFunding(ctx context.Context) ([]BulkFunding, error) {
	var raw json.RawMessage
	if err := getJSON(ctx, a.httpClient, "aster funding", a.fundingURL, &raw); err != nil {
		return nil, err
	}

	var items []asterFunding
	trimmed := bytes.TrimSpace(raw)

	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return []BulkFunding{}, nil
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("aster funding: %w: %v", ErrMalformedPayload, err)
		}
	default:
		var env struct {
			Data []asterFunding `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("aster funding: %w: %v", ErrMalformedPayload, err)
		}
		items = env.Data
	}

	out := make([]BulkFunding, 0, len(items))
	for _, it := range items {
		if it.Symbol == "" {
			continue
		}
		out = append(out, BulkFunding{
			Symbol:          it.Symbol,
			MarkPrice:       string(it.MarkPrice),
			FundingRate:     string(it.LastFundingRate),
			NextFundingTime: int64(it.NextFundingTime),
			IntervalHours:   int(it.FundingIntervalHours),
			ObservedTime:    int64(it.Time),
		})
	}
	return out, nil
}
