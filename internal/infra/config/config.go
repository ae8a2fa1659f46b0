package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	OAuth     OAuthSettings     `mapstructure:"oauth"`
	Session   SessionSettings   `mapstructure:"session"`
	Allowance AllowanceSettings `mapstructure:"allowance"`
	Admin     AdminSettings     `mapstructure:"admin"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Version        string   `mapstructure:"version"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// TrustedProxies lists the addresses or CIDRs allowed to set X-Forwarded-For.
	// Empty means the socket peer is always the client address.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	HandshakePrefix string `mapstructure:"handshake_prefix"`
	PoolSize        int    `mapstructure:"pool_size"`
}

// KafkaSettings configures the producer and the feature-shipped consumer group.
type KafkaSettings struct {
	Brokers          []string `mapstructure:"brokers"`
	TopicPrefix      string   `mapstructure:"topic_prefix"`
	Async            bool     `mapstructure:"async"`
	ConsumerGroup    string   `mapstructure:"consumer_group"`
	FeatureShipTopic string   `mapstructure:"feature_ship_topic"`
	ConsumerEnabled  bool     `mapstructure:"consumer_enabled"`
}

// RateLimitSettings configures rate limiting windows and max attempts per endpoint
type RateLimitSettings struct {
	WindowDuration       time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts     int           `mapstructure:"login_max_attempts"`
	CallbackMaxAttempts  int           `mapstructure:"callback_max_attempts"`
	AllowanceMaxAttempts int           `mapstructure:"allowance_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// OAuthSettings describes the third-party identity provider.
type OAuthSettings struct {
	Provider          string        `mapstructure:"provider"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	AuthURL           string        `mapstructure:"auth_url"`
	TokenURL          string        `mapstructure:"token_url"`
	ProfileURL        string        `mapstructure:"profile_url"`
	Scopes            []string      `mapstructure:"scopes"`
	RedirectURL       string        `mapstructure:"redirect_url"`
	PostLoginRedirect string        `mapstructure:"post_login_redirect"`
	HandshakeTTL      time.Duration `mapstructure:"handshake_ttl"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
}

// SessionSettings controls the browser session lifecycle.
type SessionSettings struct {
	TTL            time.Duration `mapstructure:"ttl"`
	Sliding        bool          `mapstructure:"sliding"`
	ReaperInterval time.Duration `mapstructure:"reaper_interval"`
	CookieName     string        `mapstructure:"cookie_name"`
	CookieDomain   string        `mapstructure:"cookie_domain"`
	CookieSecure   bool          `mapstructure:"cookie_secure"`
}

// AllowanceSettings bounds anonymous and authenticated voting.
type AllowanceSettings struct {
	Default      int `mapstructure:"default"`
	Max          int `mapstructure:"max"`
	DefaultGrant int `mapstructure:"default_grant"`
}

type AdminSettings struct {
	Token string `mapstructure:"token"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("BOARD")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.version",
		"app.allowed_origins",
		"app.trusted_proxies",
		"grpc.host",
		"grpc.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.auto_migrate",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.handshake_prefix",
		"redis.pool_size",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"kafka.consumer_group",
		"kafka.feature_ship_topic",
		"kafka.consumer_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.callback_max_attempts",
		"rate_limit.allowance_max_attempts",
		"oauth.provider",
		"oauth.client_id",
		"oauth.client_secret",
		"oauth.auth_url",
		"oauth.token_url",
		"oauth.profile_url",
		"oauth.scopes",
		"oauth.redirect_url",
		"oauth.post_login_redirect",
		"oauth.handshake_ttl",
		"oauth.http_timeout",
		"session.ttl",
		"session.sliding",
		"session.reaper_interval",
		"session.cookie_name",
		"session.cookie_domain",
		"session.cookie_secure",
		"allowance.default",
		"allowance.max",
		"allowance.default_grant",
		"admin.token",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks settings the service cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.OAuth.ClientID) == "" {
		errs = append(errs, errors.New("oauth.client_id is required"))
	}
	if strings.TrimSpace(c.OAuth.RedirectURL) == "" {
		errs = append(errs, errors.New("oauth.redirect_url is required"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	if c.OAuth.HandshakeTTL <= 0 {
		errs = append(errs, errors.New("oauth.handshake_ttl must be positive"))
	}
	if c.Allowance.Default < 0 {
		errs = append(errs, errors.New("allowance.default must not be negative"))
	}
	if c.Allowance.Max < c.Allowance.Default {
		errs = append(errs, errors.New("allowance.max must be at least allowance.default"))
	}
	for _, proxy := range c.App.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("app.trusted_proxies: %q is not an IP or CIDR", proxy))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "board-identity")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.allowed_origins", []string{})
	v.SetDefault("app.trusted_proxies", []string{})

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "board")
	v.SetDefault("postgres.password", "board_password")
	v.SetDefault("postgres.database", "board")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.handshake_prefix", "board:oauth_state")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "board")
	v.SetDefault("kafka.async", true)
	v.SetDefault("kafka.consumer_group", "board-identity")
	v.SetDefault("kafka.feature_ship_topic", "board.feature.implemented")
	v.SetDefault("kafka.consumer_enabled", true)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "board-identity")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.callback_max_attempts", 10)
	v.SetDefault("rate_limit.allowance_max_attempts", 60)

	// X (Twitter) OAuth 2.0 with PKCE
	v.SetDefault("oauth.provider", "x")
	v.SetDefault("oauth.auth_url", "https://twitter.com/i/oauth2/authorize")
	v.SetDefault("oauth.token_url", "https://api.twitter.com/2/oauth2/token")
	v.SetDefault("oauth.profile_url", "https://api.twitter.com/2/users/me?user.fields=profile_image_url")
	v.SetDefault("oauth.scopes", []string{"users.read", "tweet.read"})
	v.SetDefault("oauth.post_login_redirect", "/")
	v.SetDefault("oauth.handshake_ttl", "10m")
	v.SetDefault("oauth.http_timeout", "10s")

	v.SetDefault("session.ttl", "720h")
	v.SetDefault("session.sliding", false)
	v.SetDefault("session.reaper_interval", "1h")
	v.SetDefault("session.cookie_name", "board_session")
	v.SetDefault("session.cookie_domain", "")
	v.SetDefault("session.cookie_secure", true)

	v.SetDefault("allowance.default", 3)
	v.SetDefault("allowance.max", 10)
	v.SetDefault("allowance.default_grant", 1)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "BOARD_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
