package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL"`
	Postgres    Postgres
	API         API
	Cache       Cache
	Retry       Retry
	Jobs        Jobs
	Portfolio   Portfolio
	GoogleDrive GoogleDrive
	Settings    Settings
}

type Postgres struct {
	Host            string `env:"PG_HOST"`
	Port            int    `env:"PG_PORT"`
	DbName          string `env:"PG_DB_NAME"`
	Password        string `env:"PG_PASSWORD"`
	User            string `env:"PG_USER"`
	MaxOpenConns    int    `env:"PG_MAX_OPEN_CONNS"`
	ConnMaxLifetime int    `env:"PG_CONN_MAX_LIFETIME"`
	MaxIdleConns    int    `env:"PG_MAX_IDLE_CONNS"`
	ConnMaxIdleTime int    `env:"PG_CONN_MAX_IDLE_TIME"`
	MigrationDir    string `env:"PG_MIGRATION_DIR"`
}

type API struct {
	Debug        bool          `env:"API_DEBUG"`
	Timeout      time.Duration `env:"API_TIMEOUT"`
	CoingeckoApi CoingeckoApi
}

type CoingeckoApi struct {
	Url string `env:"COINGECKO_API_URL"`
}

type Cache struct {
	QuotesTTL time.Duration `env:"CACHE_QUOTES_TTL" envDefault:"5m"`
}

type Retry struct {
	MaxRetries int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	BaseDelay  time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
}

type Jobs struct {
	PriceRefreshInterval      time.Duration `env:"PRICE_REFRESH_JOB_INTERVAL" envDefault:"120s"`
	ConnectivityProbeInterval time.Duration `env:"CONNECTIVITY_PROBE_JOB_INTERVAL" envDefault:"30s"`
	DriveCleanupInterval      time.Duration `env:"DRIVE_CLEANUP_JOB_INTERVAL" envDefault:"24h"`
	ReportExportInterval      time.Duration `env:"REPORT_EXPORT_JOB_INTERVAL" envDefault:"24h"`
}

type Portfolio struct {
	RefreshThrottle time.Duration `env:"PORTFOLIO_REFRESH_THROTTLE" envDefault:"1s"`
}

type GoogleDrive struct {
	CredentialsFile string        `env:"GOOGLE_DRIVE_CREDENTIALS_FILE" envDefault:""`
	FileTTL         time.Duration `env:"GOOGLE_DRIVE_FILE_TTL" envDefault:"720h"`
}

type Settings struct {
	FallbackFile string `env:"SETTINGS_FALLBACK_FILE" envDefault:"settings_fallback.json"`
}

func MustLoad() *Config {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	opts := env.Options{RequiredIfNoDef: true}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		log.Fatalf("parse config error: %s", err)
	}

	return cfg
}
