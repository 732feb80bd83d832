package arbitrage

import (
	"math"
	"strconv"
	"strings"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100

	maxPage = math.MaxInt32
)

type Query struct {
	Page  int
	Limit int
	// Min is the minimum dailyPct a row must reach.
	Min float64
}

// ParseQuery coerces raw query parameters. Missing or invalid values fall back
// to defaults and are never rejected.
func ParseQuery(page, limit, minDaily string) Query {
	q := Query{Page: DefaultPage, Limit: DefaultLimit}

	if v, ok := parseFinite(page); ok && v > 0 {
		q.Page = max(1, int(math.Min(math.Floor(v), maxPage)))
	}
	if v, ok := parseFinite(limit); ok && v > 0 {
		q.Limit = max(1, int(math.Min(math.Floor(v), MaxLimit)))
	}
	if v, ok := parseFinite(minDaily); ok && v >= 0 {
		q.Min = v
	}
	return q
}

func parseFinite(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
