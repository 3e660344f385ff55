package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable consumed by the app.
	EnvPrefix = "SERVICEHUB"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SERVICEHUB_DB_DSN"
	EnvDBHost = "SERVICEHUB_DB_HOST"
	EnvDBUser = "SERVICEHUB_DB_USER"
	EnvDBName = "SERVICEHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	Ledger       LedgerConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"SERVICEHUB_APP_ENV" required:"true"`
	Port         string `envconfig:"SERVICEHUB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SERVICEHUB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SERVICEHUB_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SERVICEHUB_DB_DSN"`
	Driver string `envconfig:"SERVICEHUB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SERVICEHUB_DB_HOST"`
	LegacyPort     int    `envconfig:"SERVICEHUB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SERVICEHUB_DB_USER"`
	LegacyPassword string `envconfig:"SERVICEHUB_DB_PASSWORD"`
	LegacyName     string `envconfig:"SERVICEHUB_DB_NAME"`
	LegacySSLMode  string `envconfig:"SERVICEHUB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SERVICEHUB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SERVICEHUB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SERVICEHUB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SERVICEHUB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SERVICEHUB_REDIS_URL" required:"true"`
	Password     string        `envconfig:"SERVICEHUB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SERVICEHUB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SERVICEHUB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SERVICEHUB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SERVICEHUB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SERVICEHUB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SERVICEHUB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SERVICEHUB_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SERVICEHUB_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SERVICEHUB_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the configured access-token lifetime.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type StripeConfig struct {
	APIKey string `envconfig:"SERVICEHUB_STRIPE_API_KEY"`
	Env    string `envconfig:"SERVICEHUB_STRIPE_ENV" default:"test"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	// SettleLockTTL bounds the Redis lock serializing concurrent settle
	// retries for one gateway session.
	SettleLockTTL time.Duration `envconfig:"SERVICEHUB_CHECKOUT_SETTLE_LOCK_TTL" default:"30s"`
	// FrontendURL is where the gateway sends the client back after a hosted
	// checkout session completes or is abandoned.
	FrontendURL string `envconfig:"SERVICEHUB_FRONTEND_URL" default:"http://localhost:3000"`
}

// SuccessURL is the post-payment redirect. The gateway substitutes the
// session id into the placeholder.
func (c CheckoutConfig) SuccessURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is the redirect for abandoned sessions.
func (c CheckoutConfig) CancelURL() string {
	return strings.TrimRight(c.FrontendURL, "/") + "/checkout/cancel"
}

type LedgerConfig struct {
	// ReverseSettledPayouts controls whether a refund after payout settlement
	// also decrements the paid/total buckets. The legacy behavior reverses
	// only pending, leaving paid/total overstated.
	ReverseSettledPayouts bool `envconfig:"SERVICEHUB_LEDGER_REVERSE_SETTLED_PAYOUTS" default:"false"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SERVICEHUB_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SERVICEHUB_AUTO_MIGRATE" default:"false"`
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
