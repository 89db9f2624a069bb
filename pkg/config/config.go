package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOCKLINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "STOCKLINE_DB_DSN"
	EnvDBHost = "STOCKLINE_DB_HOST"
	EnvDBUser = "STOCKLINE_DB_USER"
	EnvDBName = "STOCKLINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Idempotency   IdempotencyConfig
	Cron          CronConfig
	Bootstrap     BootstrapConfig
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
	Env          string `envconfig:"STOCKLINE_APP_ENV" required:"true"`
	Port         string `envconfig:"STOCKLINE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOCKLINE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOCKLINE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"STOCKLINE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"STOCKLINE_DB_DSN"`
	Driver string `envconfig:"STOCKLINE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOCKLINE_DB_HOST"`
	LegacyPort     int    `envconfig:"STOCKLINE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOCKLINE_DB_USER"`
	LegacyPassword string `envconfig:"STOCKLINE_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOCKLINE_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOCKLINE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOCKLINE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOCKLINE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOCKLINE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOCKLINE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOCKLINE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"STOCKLINE_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOCKLINE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOCKLINE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOCKLINE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOCKLINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOCKLINE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOCKLINE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"STOCKLINE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"STOCKLINE_JWT_ISSUER" default:"stockline"`
	ExpirationMinutes int    `envconfig:"STOCKLINE_JWT_EXPIRATION_MINUTES" default:"480"`
}

func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"STOCKLINE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"STOCKLINE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"STOCKLINE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"STOCKLINE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"STOCKLINE_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow       time.Duration `envconfig:"STOCKLINE_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginAccountLimit int           `envconfig:"STOCKLINE_AUTH_RATE_LIMIT_LOGIN_ACCOUNT_LIMIT" default:"5"`
	LoginIPLimit      int           `envconfig:"STOCKLINE_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOCKLINE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOCKLINE_AUTO_MIGRATE" default:"false"`
	DemoSeed    bool `envconfig:"STOCKLINE_DEMO_SEED" default:"false"`
}

type IdempotencyConfig struct {
	RecordTTL   time.Duration `envconfig:"STOCKLINE_IDEMPOTENCY_RECORD_TTL" default:"168h"`
	InFlightTTL time.Duration `envconfig:"STOCKLINE_IDEMPOTENCY_IN_FLIGHT_TTL" default:"15m"`
}

type CronConfig struct {
	LeaderLockTTL time.Duration `envconfig:"STOCKLINE_CRON_LEADER_LOCK_TTL" default:"5m"`
	PurgeInterval time.Duration `envconfig:"STOCKLINE_CRON_PURGE_INTERVAL" default:"1h"`
}

type BootstrapConfig struct {
	AdminUsername string `envconfig:"STOCKLINE_ADMIN_USERNAME" default:"admin"`
	AdminPassword string `envconfig:"STOCKLINE_ADMIN_PASSWORD"`
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
