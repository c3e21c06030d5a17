package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App               AppConfig
	DB                DBConfig
	Redis             RedisConfig
	Identity          IdentityConfig
	Paystack          PaystackConfig
	GCP               GCPConfig
	GCS               GCSConfig
	Media             MediaConfig
	PubSub            PubSubConfig
	PurchaseRateLimit PurchaseRateLimitConfig
	FeatureFlags      FeatureFlagsConfig
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
	Env          string `envconfig:"TUNECRATE_APP_ENV" required:"true"`
	Port         string `envconfig:"TUNECRATE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TUNECRATE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TUNECRATE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"TUNECRATE_DB_DSN"`
	Driver string `envconfig:"TUNECRATE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"TUNECRATE_DB_HOST"`
	Port     int    `envconfig:"TUNECRATE_DB_PORT" default:"5432"`
	User     string `envconfig:"TUNECRATE_DB_USER"`
	Password string `envconfig:"TUNECRATE_DB_PASSWORD"`
	Name     string `envconfig:"TUNECRATE_DB_NAME"`
	SSLMode  string `envconfig:"TUNECRATE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TUNECRATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TUNECRATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TUNECRATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TUNECRATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (d *DBConfig) ensureDSN() error {
	if strings.EqualFold(d.Driver, "sqlite") {
		if d.DSN == "" {
			d.DSN = "file::memory:?cache=shared"
		}
		return nil
	}
	if d.DSN != "" {
		return nil
	}
	if d.Host == "" || d.User == "" || d.Name == "" {
		return fmt.Errorf("either TUNECRATE_DB_DSN or host/user/name must be set")
	}
	d.DSN = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(d.User),
		url.QueryEscape(d.Password),
		d.Host,
		d.Port,
		d.Name,
		d.SSLMode,
	)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"TUNECRATE_REDIS_URL" required:"true"`
	Password     string        `envconfig:"TUNECRATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"TUNECRATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TUNECRATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TUNECRATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TUNECRATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TUNECRATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TUNECRATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// IdentityConfig describes how to validate tokens minted by the external
// identity provider. The provider owns authentication; this service only
// verifies the signature and trusts the embedded role claim.
type IdentityConfig struct {
	Secret string `envconfig:"TUNECRATE_IDENTITY_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"TUNECRATE_IDENTITY_ISSUER" required:"true"`
}

type PaystackConfig struct {
	SecretKey     string        `envconfig:"TUNECRATE_PAYSTACK_SECRET_KEY" required:"true"`
	WebhookSecret string        `envconfig:"TUNECRATE_PAYSTACK_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"TUNECRATE_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL   string        `envconfig:"TUNECRATE_PAYSTACK_CALLBACK_URL"`
	HTTPTimeout   time.Duration `envconfig:"TUNECRATE_PAYSTACK_HTTP_TIMEOUT" default:"15s"`
}

// SigningSecret returns the secret used to validate webhook signatures.
// Paystack signs events with the account secret key unless a dedicated
// webhook secret is configured.
func (p PaystackConfig) SigningSecret() string {
	if p.WebhookSecret != "" {
		return p.WebhookSecret
	}
	return p.SecretKey
}

type GCPConfig struct {
	ProjectID              string `envconfig:"TUNECRATE_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"TUNECRATE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"TUNECRATE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName     string        `envconfig:"TUNECRATE_GCS_BUCKET_NAME" required:"true"`
	StreamTTL      time.Duration `envconfig:"TUNECRATE_GCS_STREAM_URL_TTL" default:"1h"`
	DownloadTTL    time.Duration `envconfig:"TUNECRATE_GCS_DOWNLOAD_URL_TTL" default:"24h"`
	UploadTimeout  time.Duration `envconfig:"TUNECRATE_GCS_UPLOAD_TIMEOUT" default:"2m"`
	SkipStartPing  bool          `envconfig:"TUNECRATE_GCS_SKIP_START_PING" default:"false"`
}

type MediaConfig struct {
	MaxUploadMB int `envconfig:"TUNECRATE_MEDIA_MAX_UPLOAD_MB" default:"100"`
}

type PubSubConfig struct {
	ReceiptsTopic        string `envconfig:"TUNECRATE_PUBSUB_RECEIPTS_TOPIC" default:"tc-purchase-receipts"`
	ReceiptsSubscription string `envconfig:"TUNECRATE_PUBSUB_RECEIPTS_SUBSCRIPTION" default:"tc-purchase-receipts-notifier"`
}

type PurchaseRateLimitConfig struct {
	Window time.Duration `envconfig:"TUNECRATE_PURCHASE_RATE_LIMIT_WINDOW" default:"1m"`
	Limit  int           `envconfig:"TUNECRATE_PURCHASE_RATE_LIMIT" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"TUNECRATE_AUTO_MIGRATE" default:"false"`
}
