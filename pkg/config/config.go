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
	FeatureFlags FeatureFlagsConfig
	Reconcile    ReconcileConfig
	Providers    ProvidersConfig
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
	Env          string `envconfig:"VIRTULINE_APP_ENV" required:"true"`
	Port         string `envconfig:"VIRTULINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VIRTULINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VIRTULINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"VIRTULINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"VIRTULINE_DB_DSN"`
	Driver string `envconfig:"VIRTULINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"VIRTULINE_DB_HOST"`
	LegacyPort     int    `envconfig:"VIRTULINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"VIRTULINE_DB_USER"`
	LegacyPassword string `envconfig:"VIRTULINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"VIRTULINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"VIRTULINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"VIRTULINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"VIRTULINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"VIRTULINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"VIRTULINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"VIRTULINE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VIRTULINE_REDIS_ADDR"`
	Password     string        `envconfig:"VIRTULINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"VIRTULINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VIRTULINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VIRTULINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VIRTULINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VIRTULINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VIRTULINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"VIRTULINE_AUTO_MIGRATE" default:"false"`
}

// ReconcileConfig tunes the polling worker and the sweep jobs.
type ReconcileConfig struct {
	PollInterval       time.Duration `envconfig:"VIRTULINE_RECONCILE_POLL_INTERVAL" default:"1m"`
	PollRetryDelay     time.Duration `envconfig:"VIRTULINE_RECONCILE_POLL_RETRY_DELAY" default:"30s"`
	PollMaxRetries     int           `envconfig:"VIRTULINE_RECONCILE_POLL_MAX_RETRIES" default:"5"`
	SweepInterval      time.Duration `envconfig:"VIRTULINE_RECONCILE_SWEEP_INTERVAL" default:"5m"`
	OrderSafetyCeiling time.Duration `envconfig:"VIRTULINE_RECONCILE_ORDER_SAFETY_CEILING" default:"24h"`
	BalanceInterval    time.Duration `envconfig:"VIRTULINE_RECONCILE_BALANCE_INTERVAL" default:"1h"`

	InteractiveCallTimeout time.Duration `envconfig:"VIRTULINE_PROVIDER_INTERACTIVE_TIMEOUT" default:"8s"`
	BackgroundCallTimeout  time.Duration `envconfig:"VIRTULINE_PROVIDER_BACKGROUND_TIMEOUT" default:"30s"`
}

// ProvidersConfig carries one block per external vendor.
type ProvidersConfig struct {
	FiveSim  FiveSimConfig
	EsimGo   EsimGoConfig
	SmmStone SmmStoneConfig
}

// FiveSimConfig configures the virtual phone number vendor (bearer token auth).
type FiveSimConfig struct {
	Enabled      bool   `envconfig:"VIRTULINE_FIVESIM_ENABLED" default:"false"`
	BaseURL      string `envconfig:"VIRTULINE_FIVESIM_BASE_URL" default:"https://5sim.net"`
	APIToken     string `envconfig:"VIRTULINE_FIVESIM_API_TOKEN"`
	CountryCodes string `envconfig:"VIRTULINE_FIVESIM_COUNTRY_CODES"`
	ServiceCodes string `envconfig:"VIRTULINE_FIVESIM_SERVICE_CODES"`
}

// EsimGoConfig configures the eSIM vendor (API key auth, push webhooks).
type EsimGoConfig struct {
	Enabled       bool   `envconfig:"VIRTULINE_ESIMGO_ENABLED" default:"false"`
	BaseURL       string `envconfig:"VIRTULINE_ESIMGO_BASE_URL" default:"https://api.esim-go.com"`
	APIKey        string `envconfig:"VIRTULINE_ESIMGO_API_KEY"`
	WebhookSecret string `envconfig:"VIRTULINE_ESIMGO_WEBHOOK_SECRET"`
	RegionCodes   string `envconfig:"VIRTULINE_ESIMGO_REGION_CODES"`
}

// SmmStoneConfig configures the SMM panel vendor (key passed as a signed form field).
type SmmStoneConfig struct {
	Enabled      bool   `envconfig:"VIRTULINE_SMMSTONE_ENABLED" default:"false"`
	BaseURL      string `envconfig:"VIRTULINE_SMMSTONE_BASE_URL" default:"https://smmstone.com/api/v2"`
	APIKey       string `envconfig:"VIRTULINE_SMMSTONE_API_KEY"`
	ServiceCodes string `envconfig:"VIRTULINE_SMMSTONE_SERVICE_CODES"`
}

// SelectorMap parses a comma separated "internal=vendor" mapping string.
// Missing or malformed entries fall back to the identity mapping at the call site.
func SelectorMap(raw string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
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
