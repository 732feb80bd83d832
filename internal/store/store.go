// Package store is the persistence collaborator: keyed upserts for the
// ingestion path and a time-bounded joined read for the detector.
package store

import (
	"context"

	"github.com/suwandre/fundarb/internal/models"
)

type Repository interface {
	// SeedExchanges upserts exchanges by code.
	SeedExchanges(ctx context.Context, exchanges []models.Exchange) error
	// ExchangeIDs maps exchange code to id.
	ExchangeIDs(ctx context.Context) (map[string]int64, error)
	FindInstruments(ctx context.Context, canonicals []string) ([]models.Instrument, error)
	// InsertInstruments creates instruments, ignoring ones that already exist.
	InsertInstruments(ctx context.Context, canonicals []string) error
	// UpsertSnapshots inserts or overwrites by (exchange_id, instrument_id).
	UpsertSnapshots(ctx context.Context, snapshots []models.FundingSnapshot) error
	// SnapshotsSince returns snapshots retrieved at or after minRetrievedAtMs,
	// joined with exchange code and canonical symbol.
	SnapshotsSince(ctx context.Context, minRetrievedAtMs int64) ([]models.SnapshotView, error)
}

// DefaultExchanges are seeded at startup.
var DefaultExchanges = []models.Exchange{
	{Code: "mexc", Name: "MEXC", Type: models.CEX},
	{Code: "aster", Name: "Aster", Type: models.DEX},
	{Code: "binance", Name: "Binance", Type: models.CEX},
	{Code: "bybit", Name: "Bybit", Type: models.CEX},
}
