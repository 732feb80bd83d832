package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const upsertBatchSize = 1000

type PostgresConfig struct {
	Host        string
	Port        string
	User        string
	Password    string
	Name        string
	SSLMode     string
	Logging     bool
	AutoMigrate bool
}

func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Name,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Postgres is the gorm-backed Repository.
type Postgres struct {
	db *gorm.DB
}

func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	level := gormlogger.Silent
	if cfg.Logging {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(&models.Exchange{}, &models.Instrument{}, &models.FundingSnapshot{}); err != nil {
			return nil, fmt.Errorf("postgres: auto-migrate failed: %w", err)
		}
		log.Info().Msg("postgres schema synchronized")
	}

	return &Postgres{db: db}, nil
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

// SQL exposes the pool, e.g. for session-scoped advisory locks.
func (p *Postgres) SQL() (*sql.DB, error) {
	return p.db.DB()
}

func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Postgres) SeedExchanges(ctx context.Context, exchanges []models.Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}
	rows := append([]models.Exchange(nil), exchanges...)
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "type"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("postgres: seed exchanges: %w", err)
	}
	return nil
}

func (p *Postgres) ExchangeIDs(ctx context.Context) (map[string]int64, error) {
	var rows []models.Exchange
	if err := p.db.WithContext(ctx).Select("id", "code").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: load exchanges: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Code] = r.ID
	}
	return out, nil
}

func (p *Postgres) FindInstruments(ctx context.Context, canonicals []string) ([]models.Instrument, error) {
	if len(canonicals) == 0 {
		return nil, nil
	}
	var rows []models.Instrument
	err := p.db.WithContext(ctx).
		Select("id", "canonical").
		Where("canonical IN ?", canonicals).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: find instruments: %w", err)
	}
	return rows, nil
}

func (p *Postgres) InsertInstruments(ctx context.Context, canonicals []string) error {
	if len(canonicals) == 0 {
		return nil
	}
	rows := make([]models.Instrument, len(canonicals))
	for i, c := range canonicals {
		rows[i] = models.Instrument{Canonical: c}
	}
	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "canonical"}}, DoNothing: true}).
		CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("postgres: insert instruments: %w", err)
	}
	return nil
}

func (p *Postgres) UpsertSnapshots(ctx context.Context, snapshots []models.FundingSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	rows := append([]models.FundingSnapshot(nil), snapshots...)
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "exchange_id"}, {Name: "instrument_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"funding_time_ms",
			"interval_hours",
			"funding_rate",
			"mark_price",
			"next_funding_time_ms",
			"retrieved_at_ms",
		}),
	}).CreateInBatches(&rows, upsertBatchSize).Error
	if err != nil {
		return fmt.Errorf("postgres: upsert snapshots: %w", err)
	}
	return nil
}

func (p *Postgres) SnapshotsSince(ctx context.Context, minRetrievedAtMs int64) ([]models.SnapshotView, error) {
	var rows []models.SnapshotView
	err := p.db.WithContext(ctx).
		Table("funding_snapshot AS fs").
		Select("fs.*, ex.code AS exchange_code, ins.canonical AS canonical").
		Joins("JOIN exchange ex ON ex.id = fs.exchange_id").
		Joins("JOIN instrument ins ON ins.id = fs.instrument_id").
		Where("fs.retrieved_at_ms >= ?", minRetrievedAtMs).
		Order("fs.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: snapshots since %d: %w", minRetrievedAtMs, err)
	}
	return rows, nil
}
