package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const MinPollInterval = 5 * time.Second

type Config struct {
	AppPort string

	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	PollInterval    time.Duration
	MexcRPS         int
	MexcBatchSize   int
	MexcWorkers     int
	MexcTickersURL  string
	MexcFundingBase string
	AsterFundingURL string

	BinanceEnabled        bool
	BinancePremiumURL     string
	BinanceFundingInfoURL string
	BybitEnabled          bool
	BybitTickersURL       string

	HTTPProxy   string
	HTTPTimeout time.Duration

	StoreDriver string
	DB          DBConfig

	LockDriver string
	LockKey    int64
	Redis      RedisConfig

	StaleDefault   time.Duration
	StaleOverrides map[string]time.Duration
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Sync     bool
	Logging  bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Load reads .env (if present) and the environment. Any invalid value is
// returned as an error and should stop startup.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, reading from environment directly")
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		MexcTickersURL:  getEnv("MEXC_TICKERS_URL", ""),
		MexcFundingBase: getEnv("MEXC_FUNDING_BASE", ""),
		AsterFundingURL: getEnv("ASTER_FUNDING_URL", ""),

		BinancePremiumURL:     getEnv("BINANCE_PREMIUM_URL", ""),
		BinanceFundingInfoURL: getEnv("BINANCE_FUNDING_INFO_URL", ""),
		BybitTickersURL:       getEnv("BYBIT_TICKERS_URL", ""),

		HTTPProxy:   getEnv("HTTP_PROXY", ""),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		LockDriver:  strings.ToLower(getEnv("LOCK_DRIVER", "postgres")),

		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "fundarb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
	}

	var err error
	cfg.LogMaxSizeMB, err = getInt("LOG_MAX_SIZE_MB", 100)
	collect(err)
	cfg.LogMaxBackups, err = getInt("LOG_MAX_BACKUPS", 5)
	collect(err)
	cfg.LogMaxAgeDays, err = getInt("LOG_MAX_AGE_DAYS", 14)
	collect(err)

	cfg.PollInterval, err = getDurationMs("FUNDING_POLL_MS", 45*time.Second)
	collect(err)
	cfg.MexcRPS, err = getInt("MEXC_FUNDING_RPS", 19)
	collect(err)
	cfg.MexcBatchSize, err = getInt("MEXC_BATCH_SIZE", 250)
	collect(err)
	cfg.MexcWorkers, err = getInt("MEXC_WORKERS", 5)
	collect(err)
	cfg.HTTPTimeout, err = getDurationMs("HTTP_TIMEOUT_MS", 10*time.Second)
	collect(err)

	cfg.BinanceEnabled, err = getBool("BINANCE_ENABLED", false)
	collect(err)
	cfg.BybitEnabled, err = getBool("BYBIT_ENABLED", false)
	collect(err)
	cfg.DB.Sync, err = getBool("DB_SYNC", false)
	collect(err)
	cfg.DB.Logging, err = getBool("DB_LOGGING", false)
	collect(err)

	lockKey, err := getInt("LOCK_KEY", 424242)
	collect(err)
	cfg.LockKey = int64(lockKey)
	cfg.Redis.DB, err = getInt("REDIS_DB", 0)
	collect(err)
	cfg.Redis.LockTTL, err = getDurationMs("LOCK_TTL_MS", 10*time.Minute)
	collect(err)

	cfg.StaleDefault, err = getDurationMs("STALE_DEFAULT_MS", 3*time.Minute)
	collect(err)
	cfg.StaleOverrides, err = ParseOverrides(getEnv("STALE_OVERRIDES", "mexc=240000,aster=120000"))
	collect(err)

	collect(cfg.validate())

	if len(errs) > 0 {
		return nil, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.PollInterval < MinPollInterval {
		errs = append(errs, fmt.Errorf("FUNDING_POLL_MS must be >= %d, got %d", MinPollInterval.Milliseconds(), c.PollInterval.Milliseconds()))
	}
	if c.MexcRPS <= 0 {
		errs = append(errs, fmt.Errorf("MEXC_FUNDING_RPS must be > 0, got %d", c.MexcRPS))
	}
	if c.MexcBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("MEXC_BATCH_SIZE must be > 0, got %d", c.MexcBatchSize))
	}
	if c.MexcWorkers <= 0 {
		errs = append(errs, fmt.Errorf("MEXC_WORKERS must be > 0, got %d", c.MexcWorkers))
	}
	for key, val := range map[string]string{
		"MEXC_TICKERS_URL":  c.MexcTickersURL,
		"MEXC_FUNDING_BASE": c.MexcFundingBase,
		"ASTER_FUNDING_URL": c.AsterFundingURL,
	} {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	if c.StaleDefault <= 0 {
		errs = append(errs, errors.New("STALE_DEFAULT_MS must be > 0"))
	}

	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.StoreDriver))
	}
	switch c.LockDriver {
	case "postgres", "redis", "local":
	default:
		errs = append(errs, fmt.Errorf("LOCK_DRIVER must be postgres, redis or local, got %q", c.LockDriver))
	}
	if c.LockDriver == "redis" && c.Redis.LockTTL <= c.PollInterval {
		errs = append(errs, fmt.Errorf("LOCK_TTL_MS must exceed FUNDING_POLL_MS, got %d <= %d", c.Redis.LockTTL.Milliseconds(), c.PollInterval.Milliseconds()))
	}
	if c.LockDriver == "postgres" && c.StoreDriver != "postgres" {
		errs = append(errs, errors.New("LOCK_DRIVER=postgres needs STORE_DRIVER=postgres"))
	}

	return errors.Join(errs...)
}

// ParseOverrides reads "code=ms,code=ms" into per-exchange durations.
func ParseOverrides(raw string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, ms, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("STALE_OVERRIDES: %q is not code=ms", part)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(ms), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("STALE_OVERRIDES: bad duration for %q", code)
		}
		out[strings.ToLower(strings.TrimSpace(code))] = time.Duration(n) * time.Millisecond
	}
	return out, nil
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, raw)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, raw)
	}
	return b, nil
}

func getDurationMs(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a millisecond count", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
