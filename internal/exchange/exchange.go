package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrMalformedPayload means the venue answered 2xx with a body we could not decode.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsuccessful means the venue envelope reported failure (success=false, retCode!=0).
	ErrUnsuccessful = errors.New("venue reported failure")
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	What string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.What, e.Code)
}

// BulkFeed is a venue that returns funding for its whole universe in one call.
type BulkFeed interface {
	Name() string
	FetchFunding(ctx context.Context) ([]BulkFunding, error)
}

// BulkFunding is one raw record of a bulk feed, still in venue units.
type BulkFunding struct {
	Symbol          string
	MarkPrice       string
	FundingRate     string
	NextFundingTime int64 // Unix ms
	IntervalHours   int
	ObservedTime    int64 // Unix ms, venue clock
}

// DecimalString keeps a JSON number or numeric string verbatim so it can be
// parsed exactly later.
type DecimalString string

func (d *DecimalString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*d = DecimalString(str)
		return nil
	}
	*d = DecimalString(s)
	return nil
}

// FlexInt accepts an integer sent either bare or quoted.
type FlexInt int64

func (n *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer %q: %w", s, err)
		}
		v = int64(f)
	}
	*n = FlexInt(v)
	return nil
}

// getJSON performs a GET and decodes a 2xx body into out.
func getJSON(ctx context.Context, client *http.Client, what, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", what, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{What: what, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response body: %w", what, err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", what, ErrMalformedPayload, err)
	}
	return nil
}
