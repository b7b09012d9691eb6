package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// CurrencyConfig describes one issued currency and its monetary authority.
type CurrencyConfig struct {
	Code      string
	Name      string
	Decimals  uint8
	Authority string
}

// FeedConfig selects the upstream price feed of an oracle-backed provider.
type FeedConfig struct {
	ID       string
	Kind     string
	Decimals uint8
	Answer   int64
	URL      string
	RedisKey string
	Timeout  time.Duration
	// MaxAge is the oldest round the oracle provider will price with; zero disables the check.
	MaxAge time.Duration
}

// Config holds all runtime configuration derived from flags, an optional config
// file and environment variables.
type Config struct {
	HTTPPort    string
	LogLevel    string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	NATSPrefix  string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	FeedHMACKey string

	Source       CurrencyConfig
	Destination  CurrencyConfig
	EngineAdmin  string
	Custody      string
	FeeBps       uint32
	ProviderKind string
	FixedRate    int64
	RateUpdater  string
	Feed         FeedConfig

	ReconciliationInterval time.Duration
	JournalPollInterval    time.Duration
	JournalBatchSize       int32
	RatePollInterval       time.Duration
	EventRetention         int
	WSAllowedOrigins       []string
	PublicRateLimitRPS     int
	AuthRateLimitRPS       int
	IdempotencyTTL         time.Duration
}

// Load reads flags from args, then environment variables using viper, and returns
// a typed config.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("settlement", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML, TOML or JSON config file")
	fs.String("port", "", "HTTP listen port")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	bindEnv(v, "port", "PORT", "SETTLEMENT_PORT")
	bindEnv(v, "log_level", "LOG_LEVEL", "SETTLEMENT_LOG_LEVEL")
	bindEnv(v, "database_url", "DATABASE_URL", "SETTLEMENT_DATABASE_URL")
	bindEnv(v, "redis_url", "REDIS_URL", "SETTLEMENT_REDIS_URL")
	bindEnv(v, "nats_url", "NATS_URL", "SETTLEMENT_NATS_URL")
	bindEnv(v, "nats_prefix", "NATS_SUBJECT_PREFIX", "SETTLEMENT_NATS_SUBJECT_PREFIX")
	bindEnv(v, "jwt_secret", "JWT_SECRET", "SETTLEMENT_JWT_SECRET")
	bindEnv(v, "jwt_issuer", "JWT_ISSUER", "SETTLEMENT_JWT_ISSUER")
	bindEnv(v, "jwt_audience", "JWT_AUDIENCE", "SETTLEMENT_JWT_AUDIENCE")
	bindEnv(v, "feed_hmac_key", "FEED_HMAC_KEY", "SETTLEMENT_FEED_HMAC_KEY")

	bindEnv(v, "source.code", "SOURCE_CURRENCY", "SETTLEMENT_SOURCE_CURRENCY")
	bindEnv(v, "source.name", "SOURCE_NAME", "SETTLEMENT_SOURCE_NAME")
	bindEnv(v, "source.decimals", "SOURCE_DECIMALS", "SETTLEMENT_SOURCE_DECIMALS")
	bindEnv(v, "source.authority", "SOURCE_AUTHORITY", "SETTLEMENT_SOURCE_AUTHORITY")
	bindEnv(v, "destination.code", "DEST_CURRENCY", "SETTLEMENT_DEST_CURRENCY")
	bindEnv(v, "destination.name", "DEST_NAME", "SETTLEMENT_DEST_NAME")
	bindEnv(v, "destination.decimals", "DEST_DECIMALS", "SETTLEMENT_DEST_DECIMALS")
	bindEnv(v, "destination.authority", "DEST_AUTHORITY", "SETTLEMENT_DEST_AUTHORITY")
	bindEnv(v, "engine_admin", "ENGINE_ADMIN", "SETTLEMENT_ENGINE_ADMIN")
	bindEnv(v, "custody", "ENGINE_CUSTODY", "SETTLEMENT_ENGINE_CUSTODY")
	bindEnv(v, "fee_bps", "FEE_BPS", "SETTLEMENT_FEE_BPS")
	bindEnv(v, "provider", "RATE_PROVIDER", "SETTLEMENT_RATE_PROVIDER")
	bindEnv(v, "fixed_rate", "FIXED_RATE", "SETTLEMENT_FIXED_RATE")
	bindEnv(v, "rate_updater", "RATE_UPDATER", "SETTLEMENT_RATE_UPDATER")
	bindEnv(v, "feed.kind", "FEED_KIND", "SETTLEMENT_FEED_KIND")
	bindEnv(v, "feed.decimals", "FEED_DECIMALS", "SETTLEMENT_FEED_DECIMALS")
	bindEnv(v, "feed.answer", "FEED_ANSWER", "SETTLEMENT_FEED_ANSWER")
	bindEnv(v, "feed.url", "FEED_URL", "SETTLEMENT_FEED_URL")
	bindEnv(v, "feed.redis_key", "FEED_REDIS_KEY", "SETTLEMENT_FEED_REDIS_KEY")
	bindEnv(v, "feed.timeout", "FEED_TIMEOUT", "SETTLEMENT_FEED_TIMEOUT")
	bindEnv(v, "feed.max_age", "FEED_MAX_AGE", "SETTLEMENT_FEED_MAX_AGE")

	bindEnv(v, "reconciliation_interval", "RECONCILIATION_INTERVAL", "SETTLEMENT_RECONCILIATION_INTERVAL")
	bindEnv(v, "journal_poll_interval", "JOURNAL_POLL_INTERVAL", "SETTLEMENT_JOURNAL_POLL_INTERVAL")
	bindEnv(v, "journal_batch_size", "JOURNAL_BATCH_SIZE", "SETTLEMENT_JOURNAL_BATCH_SIZE")
	bindEnv(v, "rate_poll_interval", "RATE_POLL_INTERVAL", "SETTLEMENT_RATE_POLL_INTERVAL")
	bindEnv(v, "event_retention", "EVENT_RETENTION", "SETTLEMENT_EVENT_RETENTION")
	bindEnv(v, "ws_allowed_origins", "WS_ALLOWED_ORIGINS", "SETTLEMENT_WS_ALLOWED_ORIGINS")
	bindEnv(v, "public_rate_limit_rps", "PUBLIC_RATE_LIMIT_RPS", "SETTLEMENT_PUBLIC_RATE_LIMIT_RPS")
	bindEnv(v, "auth_rate_limit_rps", "AUTH_RATE_LIMIT_RPS", "SETTLEMENT_AUTH_RATE_LIMIT_RPS")
	bindEnv(v, "idempotency_ttl", "IDEMPOTENCY_TTL", "SETTLEMENT_IDEMPOTENCY_TTL")

	// Flags win over every other source when set.
	_ = v.BindPFlag("port", fs.Lookup("port"))
	_ = v.BindPFlag("log_level", fs.Lookup("log-level"))

	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_prefix", "settlement")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "dual-currency-settlement")
	v.SetDefault("jwt_audience", "settlement-api")
	v.SetDefault("feed_hmac_key", "")
	v.SetDefault("source.code", "RWFC")
	v.SetDefault("source.name", "Rwandan Franc Coin")
	v.SetDefault("source.decimals", 18)
	v.SetDefault("destination.code", "eKES")
	v.SetDefault("destination.name", "Electronic Kenyan Shilling")
	v.SetDefault("destination.decimals", 18)
	v.SetDefault("custody", "settlement-engine")
	v.SetDefault("fee_bps", 25)
	v.SetDefault("provider", "fixed")
	v.SetDefault("fixed_rate", 9_450_000)
	v.SetDefault("feed.kind", "static")
	v.SetDefault("feed.decimals", 8)
	v.SetDefault("feed.answer", 9_450_000)
	v.SetDefault("feed.timeout", "3s")
	v.SetDefault("feed.max_age", "0s")
	v.SetDefault("reconciliation_interval", "1m")
	v.SetDefault("journal_poll_interval", "2s")
	v.SetDefault("journal_batch_size", 100)
	v.SetDefault("rate_poll_interval", "30s")
	v.SetDefault("event_retention", 4096)
	v.SetDefault("ws_allowed_origins", "")
	v.SetDefault("public_rate_limit_rps", 10)
	v.SetDefault("auth_rate_limit_rps", 100)
	v.SetDefault("idempotency_ttl", "24h")

	reconciliationInterval, err := time.ParseDuration(v.GetString("reconciliation_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid RECONCILIATION_INTERVAL: %w", err)
	}
	journalInterval, err := time.ParseDuration(v.GetString("journal_poll_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid JOURNAL_POLL_INTERVAL: %w", err)
	}
	rateInterval, err := time.ParseDuration(v.GetString("rate_poll_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_POLL_INTERVAL: %w", err)
	}
	ttl, err := time.ParseDuration(v.GetString("idempotency_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid IDEMPOTENCY_TTL: %w", err)
	}
	feedTimeout, err := time.ParseDuration(v.GetString("feed.timeout"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_TIMEOUT: %w", err)
	}
	feedMaxAge, err := time.ParseDuration(v.GetString("feed.max_age"))
	if err != nil || feedMaxAge < 0 {
		return nil, fmt.Errorf("invalid FEED_MAX_AGE: %q", v.GetString("feed.max_age"))
	}

	batchSize := v.GetInt("journal_batch_size")
	if batchSize <= 0 {
		batchSize = 100
	}
	feeBps := v.GetInt("fee_bps")
	if feeBps < 0 {
		return nil, fmt.Errorf("FEE_BPS must not be negative")
	}

	cfg := &Config{
		HTTPPort:    v.GetString("port"),
		LogLevel:    v.GetString("log_level"),
		DatabaseURL: strings.TrimSpace(v.GetString("database_url")),
		RedisURL:    strings.TrimSpace(v.GetString("redis_url")),
		NATSURL:     strings.TrimSpace(v.GetString("nats_url")),
		NATSPrefix:  v.GetString("nats_prefix"),
		JWTSecret:   v.GetString("jwt_secret"),
		JWTIssuer:   v.GetString("jwt_issuer"),
		JWTAudience: v.GetString("jwt_audience"),
		FeedHMACKey: v.GetString("feed_hmac_key"),
		Source: CurrencyConfig{
			Code:      v.GetString("source.code"),
			Name:      v.GetString("source.name"),
			Decimals:  uint8(v.GetUint("source.decimals")),
			Authority: strings.TrimSpace(v.GetString("source.authority")),
		},
		Destination: CurrencyConfig{
			Code:      v.GetString("destination.code"),
			Name:      v.GetString("destination.name"),
			Decimals:  uint8(v.GetUint("destination.decimals")),
			Authority: strings.TrimSpace(v.GetString("destination.authority")),
		},
		EngineAdmin:  strings.TrimSpace(v.GetString("engine_admin")),
		Custody:      strings.TrimSpace(v.GetString("custody")),
		FeeBps:       uint32(feeBps),
		ProviderKind: strings.ToLower(v.GetString("provider")),
		FixedRate:    v.GetInt64("fixed_rate"),
		RateUpdater:  strings.TrimSpace(v.GetString("rate_updater")),
		Feed: FeedConfig{
			ID:       "primary-feed",
			Kind:     strings.ToLower(v.GetString("feed.kind")),
			Decimals: uint8(v.GetUint("feed.decimals")),
			Answer:   v.GetInt64("feed.answer"),
			URL:      v.GetString("feed.url"),
			RedisKey: v.GetString("feed.redis_key"),
			Timeout:  feedTimeout,
			MaxAge:   feedMaxAge,
		},
		ReconciliationInterval: reconciliationInterval,
		JournalPollInterval:    journalInterval,
		JournalBatchSize:       int32(batchSize),
		RatePollInterval:       rateInterval,
		EventRetention:         max(v.GetInt("event_retention"), 1),
		WSAllowedOrigins:       splitList(v.GetString("ws_allowed_origins")),
		PublicRateLimitRPS:     max(v.GetInt("public_rate_limit_rps"), 1),
		AuthRateLimitRPS:       max(v.GetInt("auth_rate_limit_rps"), 1),
		IdempotencyTTL:         ttl,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if strings.TrimSpace(c.JWTIssuer) == "" {
		return fmt.Errorf("JWT_ISSUER is required")
	}
	if strings.TrimSpace(c.JWTAudience) == "" {
		return fmt.Errorf("JWT_AUDIENCE is required")
	}
	if c.Source.Authority == "" {
		return fmt.Errorf("SOURCE_AUTHORITY is required")
	}
	if c.Destination.Authority == "" {
		return fmt.Errorf("DEST_AUTHORITY is required")
	}
	if strings.EqualFold(c.Source.Code, c.Destination.Code) {
		return fmt.Errorf("SOURCE_CURRENCY and DEST_CURRENCY must differ")
	}
	if c.EngineAdmin == "" {
		return fmt.Errorf("ENGINE_ADMIN is required")
	}
	if c.Custody == "" {
		return fmt.Errorf("ENGINE_CUSTODY is required")
	}
	if c.FeeBps > 1000 {
		return fmt.Errorf("FEE_BPS must not exceed 1000")
	}

	switch c.ProviderKind {
	case "fixed":
		if c.FixedRate <= 0 {
			return fmt.Errorf("FIXED_RATE must be positive")
		}
	case "oracle":
		switch c.Feed.Kind {
		case "static":
		case "push":
			if strings.TrimSpace(c.FeedHMACKey) == "" {
				return fmt.Errorf("FEED_HMAC_KEY is required when FEED_KIND is push")
			}
		case "http":
			if strings.TrimSpace(c.Feed.URL) == "" {
				return fmt.Errorf("FEED_URL is required when FEED_KIND is http")
			}
		case "redis":
			if c.RedisURL == "" || strings.TrimSpace(c.Feed.RedisKey) == "" {
				return fmt.Errorf("REDIS_URL and FEED_REDIS_KEY are required when FEED_KIND is redis")
			}
		default:
			return fmt.Errorf("unsupported FEED_KIND: %s", c.Feed.Kind)
		}
	default:
		return fmt.Errorf("unsupported RATE_PROVIDER: %s", c.ProviderKind)
	}
	return nil
}

func bindEnv(v *viper.Viper, key string, names ...string) {
	args := append([]string{key}, names...)
	_ = v.BindEnv(args...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
