package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable the service reads.
const EnvPrefix = "seatbook"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Storage backend identifiers.
const (
	BackendSQL      = "sql"
	BackendS3       = "s3"
	BackendDynamoDB = "dynamodb"
)

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Booking   BookingConfig
	Cache     CacheConfig
	DB        DBConfig
	Redis     RedisConfig
	AWS       AWSConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Backend == BackendSQL && cfg.DB.DSN == "" && cfg.DB.Driver != "sqlite" {
		return nil, fmt.Errorf("SEATBOOK_DB_DSN is required for the %s driver", cfg.DB.Driver)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SEATBOOK_APP_ENV" default:"dev"`
	Port         string `envconfig:"SEATBOOK_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SEATBOOK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SEATBOOK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// StorageConfig selects which backend family owns inventory and records.
type StorageConfig struct {
	Backend string `envconfig:"SEATBOOK_STORAGE_BACKEND" default:"sql"`
}

func (s StorageConfig) validate() error {
	switch strings.ToLower(s.Backend) {
	case BackendSQL, BackendS3, BackendDynamoDB:
		return nil
	}
	return fmt.Errorf("unknown storage backend %q (want sql, s3 or dynamodb)", s.Backend)
}

// Normalized returns the lowercased backend identifier.
func (s StorageConfig) Normalized() string {
	return strings.ToLower(s.Backend)
}

// BookingConfig carries the seat-inventory protocol knobs.
type BookingConfig struct {
	TableCount     int           `envconfig:"SEATBOOK_TABLE_COUNT" default:"108"`
	SeatsPerTable  int           `envconfig:"SEATBOOK_SEATS_PER_TABLE" default:"10"`
	MaxPerBooking  int           `envconfig:"SEATBOOK_MAX_PER_BOOKING" default:"3"`
	Timezone       string        `envconfig:"SEATBOOK_TIMEZONE" default:"Asia/Taipei"`
	CASMaxAttempts int           `envconfig:"SEATBOOK_CAS_MAX_ATTEMPTS" default:"4"`
	CASBaseDelay   time.Duration `envconfig:"SEATBOOK_CAS_BASE_DELAY" default:"50ms"`
	IdempotencyTTL time.Duration `envconfig:"SEATBOOK_IDEMPOTENCY_TTL" default:"24h"`
	StoreTimeout   time.Duration `envconfig:"SEATBOOK_STORE_TIMEOUT" default:"5s"`
}

// Location resolves the configured civil timezone, falling back to UTC+8
// (the timezone the reservation timestamps were always rendered in).
func (b BookingConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("UTC+8", 8*60*60)
}

type CacheConfig struct {
	ListTTL time.Duration `envconfig:"SEATBOOK_CACHE_LIST_TTL" default:"5s"`
}

type DBConfig struct {
	DSN    string `envconfig:"SEATBOOK_DB_DSN"`
	Driver string `envconfig:"SEATBOOK_DB_DRIVER" default:"sqlite"`

	SQLitePath string `envconfig:"SEATBOOK_SQLITE_PATH" default:"/tmp/reservations.db"`

	MaxOpenConns    int           `envconfig:"SEATBOOK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SEATBOOK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SEATBOOK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SEATBOOK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	AutoMigrate     bool          `envconfig:"SEATBOOK_DB_AUTO_MIGRATE" default:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SEATBOOK_REDIS_URL"`
	Address      string        `envconfig:"SEATBOOK_REDIS_ADDR" default:"localhost:6379"`
	Password     string        `envconfig:"SEATBOOK_REDIS_PASSWORD"`
	DB           int           `envconfig:"SEATBOOK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SEATBOOK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SEATBOOK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SEATBOOK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SEATBOOK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SEATBOOK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AWSConfig struct {
	Region   string `envconfig:"SEATBOOK_AWS_REGION" default:"ap-northeast-1"`
	Endpoint string `envconfig:"SEATBOOK_AWS_ENDPOINT"`

	S3Bucket       string `envconfig:"SEATBOOK_S3_BUCKET" default:"seat-reservation-data"`
	S3InventoryKey string `envconfig:"SEATBOOK_S3_INVENTORY_KEY" default:"inventory/tables.json"`
	S3RecordPrefix string `envconfig:"SEATBOOK_S3_RECORD_PREFIX" default:"reservations/"`

	DynamoTablesTable       string `envconfig:"SEATBOOK_DYNAMO_TABLES_TABLE" default:"seat-tables"`
	DynamoReservationsTable string `envconfig:"SEATBOOK_DYNAMO_RESERVATIONS_TABLE" default:"seat-reservations"`
}

type JWTConfig struct {
	Secret string        `envconfig:"SEATBOOK_JWT_SECRET"`
	Issuer string        `envconfig:"SEATBOOK_JWT_ISSUER" default:"seatbook"`
	TTL    time.Duration `envconfig:"SEATBOOK_JWT_TTL" default:"1h"`
}

type RateLimitConfig struct {
	Window time.Duration `envconfig:"SEATBOOK_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"SEATBOOK_RATE_LIMIT_LIMIT" default:"120"`
}
