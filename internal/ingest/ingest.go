// Package ingest reconciles normalized funding rows into the latest-snapshot
// store. It is the only writer of funding snapshots.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/models"
	"github.com/suwandre/fundarb/internal/store"
)

type Service struct {
	repo store.Repository
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// EnsureInstruments resolves canonical symbols to instrument ids, creating
// the missing ones in one batch. Keys of the result are uppercase.
func (s *Service) EnsureInstruments(ctx context.Context, symbols []string) (map[string]int64, error) {
	uniq := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		c := strings.ToUpper(strings.TrimSpace(sym))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		uniq = append(uniq, c)
	}
	if len(uniq) == 0 {
		return map[string]int64{}, nil
	}

	existing, err := s.repo.FindInstruments(ctx, uniq)
	if err != nil {
		return nil, err
	}

	found := make(map[string]bool, len(existing))
	for _, ins := range existing {
		found[ins.Canonical] = true
	}
	var missing []string
	for _, c := range uniq {
		if !found[c] {
			missing = append(missing, c)
		}
	}

	rows := existing
	if len(missing) > 0 {
		if err := s.repo.InsertInstruments(ctx, missing); err != nil {
			return nil, err
		}
		log.Debug().Int("count", len(missing)).Msg("created instruments")

		if rows, err = s.repo.FindInstruments(ctx, uniq); err != nil {
			return nil, err
		}
	}

	out := make(map[string]int64, len(rows))
	for _, ins := range rows {
		out[ins.Canonical] = ins.ID
	}
	return out, nil
}

// Ingest upserts rows keyed by (exchange, instrument) and returns how many
// were written. Rows whose exchange or instrument cannot be resolved are
// dropped; within one batch the last row for a key wins.
func (s *Service) Ingest(ctx context.Context, rows []models.IngestRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	exchangeIDs, err := s.repo.ExchangeIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	canonicals := make([]string, len(rows))
	for i, r := range rows {
		canonicals[i] = r.Canonical
	}
	instrumentIDs, err := s.EnsureInstruments(ctx, canonicals)
	if err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}

	type key struct{ exchangeID, instrumentID int64 }
	index := make(map[key]int, len(rows))
	payload := make([]models.FundingSnapshot, 0, len(rows))
	dropped := 0

	for _, r := range rows {
		exchangeID, ok := exchangeIDs[r.ExchangeCode]
		if !ok {
			dropped++
			continue
		}
		instrumentID, ok := instrumentIDs[strings.ToUpper(strings.TrimSpace(r.Canonical))]
		if !ok {
			dropped++
			continue
		}

		snap := models.FundingSnapshot{
			ExchangeID:        exchangeID,
			InstrumentID:      instrumentID,
			FundingTimeMs:     r.FundingTimeMs,
			IntervalHours:     r.IntervalHours,
			FundingRateScaled: r.FundingRateScaled,
			MarkPriceScaled:   r.MarkPriceScaled,
			NextFundingTimeMs: r.NextFundingTimeMs,
			RetrievedAtMs:     r.RetrievedAtMs,
		}

		k := key{exchangeID, instrumentID}
		if i, dup := index[k]; dup {
			payload[i] = snap
			continue
		}
		index[k] = len(payload)
		payload = append(payload, snap)
	}

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Msg("ingest dropped unresolved rows")
	}
	if len(payload) == 0 {
		return 0, nil
	}

	if err := s.repo.UpsertSnapshots(ctx, payload); err != nil {
		return 0, fmt.Errorf("ingest: %w", err)
	}
	return len(payload), nil
}
