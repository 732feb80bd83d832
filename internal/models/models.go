package models

type ExchangeType int

const (
	CEX ExchangeType = 1
	DEX ExchangeType = 2
)

func (t ExchangeType) String() string {
	switch t {
	case CEX:
		return "CEX"
	case DEX:
		return "DEX"
	default:
		return "unknown"
	}
}

// Exchange is a venue we collect funding from. Seeded once at startup.
type Exchange struct {
	ID   int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	Code string       `gorm:"size:32;not null;uniqueIndex" json:"code"` // mexc / aster
	Name string       `gorm:"size:64;not null" json:"name"`
	Type ExchangeType `gorm:"not null;index" json:"type"`
}

func (Exchange) TableName() string {
	return "exchange"
}

// Instrument is the exchange-agnostic contract, created the first time any
// venue reports it.
type Instrument struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Canonical string `gorm:"size:64;not null;uniqueIndex" json:"canonical"` // BTCUSDT
}

func (Instrument) TableName() string {
	return "instrument"
}

// FundingSnapshot is the latest funding reading for one (exchange, instrument)
// pair. Every collection pass overwrites it in place.
type FundingSnapshot struct {
	ID                int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ExchangeID        int64  `gorm:"not null;uniqueIndex:uq_funding_exchange_instrument,priority:1" json:"exchange_id"`
	InstrumentID      int64  `gorm:"not null;uniqueIndex:uq_funding_exchange_instrument,priority:2" json:"instrument_id"`
	FundingTimeMs     int64  `gorm:"not null" json:"funding_time_ms"`
	IntervalHours     int    `gorm:"not null" json:"interval_hours"`
	FundingRateScaled int64  `gorm:"column:funding_rate;not null" json:"funding_rate"`
	MarkPriceScaled   *int64 `gorm:"column:mark_price" json:"mark_price"`
	NextFundingTimeMs *int64 `json:"next_funding_time_ms"`
	RetrievedAtMs     int64  `gorm:"not null;index" json:"retrieved_at_ms"`
}

func (FundingSnapshot) TableName() string {
	return "funding_snapshot"
}

// SnapshotView is a snapshot joined with its exchange code and canonical
// symbol, as returned by the detector's range query.
type SnapshotView struct {
	FundingSnapshot `gorm:"embedded"`
	ExchangeCode    string `json:"exchange_code"`
	Canonical       string `json:"canonical"`
}

// IngestRow is one normalized reading, keyed by codes rather than ids.
type IngestRow struct {
	ExchangeCode      string
	Canonical         string
	FundingRateScaled int64
	FundingTimeMs     int64
	IntervalHours     int
	MarkPriceScaled   *int64
	NextFundingTimeMs *int64
	RetrievedAtMs     int64
}
