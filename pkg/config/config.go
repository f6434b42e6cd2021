package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Partner      PartnerConfig
	Clearance    ClearanceConfig
	Wallet       WalletConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MAZADPAY_APP_ENV" required:"true"`
	Port         string `envconfig:"MAZADPAY_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MAZADPAY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MAZADPAY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAZADPAY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"MAZADPAY_DB_DSN"`
	Driver string `envconfig:"MAZADPAY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MAZADPAY_DB_HOST"`
	LegacyPort     int    `envconfig:"MAZADPAY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MAZADPAY_DB_USER"`
	LegacyPassword string `envconfig:"MAZADPAY_DB_PASSWORD"`
	LegacyName     string `envconfig:"MAZADPAY_DB_NAME"`
	LegacySSLMode  string `envconfig:"MAZADPAY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MAZADPAY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAZADPAY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAZADPAY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAZADPAY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAZADPAY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MAZADPAY_REDIS_ADDR"`
	Password     string        `envconfig:"MAZADPAY_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAZADPAY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAZADPAY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAZADPAY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAZADPAY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAZADPAY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAZADPAY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MAZADPAY_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MAZADPAY_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MAZADPAY_JWT_EXPIRATION_MINUTES" required:"true"`
}

// PartnerConfig holds the static credential for the delivery partner API.
type PartnerConfig struct {
	APIKey          string        `envconfig:"MAZADPAY_PARTNER_API_KEY" required:"true"`
	RateLimitWindow time.Duration `envconfig:"MAZADPAY_PARTNER_RATE_WINDOW" default:"1m"`
	RateLimitPerIP  int           `envconfig:"MAZADPAY_PARTNER_RATE_PER_IP" default:"120"`
}

// ClearanceConfig tunes the payout clearance sweeps.
type ClearanceConfig struct {
	SweepInterval     time.Duration `envconfig:"MAZADPAY_CLEARANCE_SWEEP_INTERVAL" default:"1h"`
	SweepBatchSize    int           `envconfig:"MAZADPAY_CLEARANCE_SWEEP_BATCH_SIZE" default:"1000"`
	DebtGraceDays     int           `envconfig:"MAZADPAY_DEBT_GRACE_DAYS" default:"5"`
	HighDebtThreshold int64         `envconfig:"MAZADPAY_HIGH_DEBT_THRESHOLD" default:"100000"`
}

// WalletConfig tunes the seller wallet settlement rules.
type WalletConfig struct {
	HoldDays          int    `envconfig:"MAZADPAY_WALLET_HOLD_DAYS" default:"2"`
	CommissionPercent string `envconfig:"MAZADPAY_WALLET_COMMISSION_PERCENT" default:"8"`
	FreeSalesPerMonth int    `envconfig:"MAZADPAY_WALLET_FREE_SALES_PER_MONTH" default:"15"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MAZADPAY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MAZADPAY_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MAZADPAY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"MAZADPAY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MAZADPAY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"MAZADPAY_PUBSUB_ORDERS_TOPIC" required:"true"`
	OrdersSubscription string `envconfig:"MAZADPAY_PUBSUB_ORDERS_SUBSCRIPTION" required:"true"`
	DomainTopic        string `envconfig:"MAZADPAY_PUBSUB_DOMAIN_TOPIC" default:"mazadpay-domain-events"`
	DomainSubscription string `envconfig:"MAZADPAY_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MAZADPAY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MAZADPAY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MAZADPAY_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
