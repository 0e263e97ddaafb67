package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvironmentDevelopment = "development"

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig selects the persistence backend. The memory driver keeps
// everything in process and is only accepted in development.
type StorageConfig struct {
	Driver string
}

type SecurityConfig struct {
	JWTSecret   string
	Issuer      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	MaxSessions int

	// EphemeralSecret is set by Load when a development secret was generated.
	EphemeralSecret bool `mapstructure:"-"`
}

type HashingConfig struct {
	Iterations int
	KeyLength  int
	SaltLength int
	Digest     string
}

type MFAConfig struct {
	Issuer          string
	Period          time.Duration
	Skew            uint
	Digits          int
	BackupCodeCount int
}

type NotificationsConfig struct {
	Enabled       bool
	Stream        string
	Group         string
	Consumer      string
	ClaimInterval time.Duration
	LoginURL      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type JobsConfig struct {
	SessionCleanup string
}

type BootstrapConfig struct {
	SuperAdminEmail    string
	SuperAdminName     string
	SuperAdminPassword string
}

type LoggingConfig struct {
	Level string
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	Hashing          HashingConfig
	MFA              MFAConfig
	Notifications    NotificationsConfig
	SMTP             SMTPConfig
	Jobs             JobsConfig
	Bootstrap        BootstrapConfig
	Logging          LoggingConfig
	AllowCORSOrigins []string
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == EnvironmentDevelopment
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("GYMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Security.JWTSecret == "" && cfg.IsDevelopment() {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.Security.JWTSecret = secret
		cfg.Security.EphemeralSecret = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate collects every configuration problem that must stop startup.
func (c *AppConfig) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Security.JWTSecret) == "" {
		problems = append(problems, "security.jwtsecret is required outside development")
	}
	if c.Security.AccessTTL <= 0 || c.Security.RefreshTTL <= 0 {
		problems = append(problems, "security token ttls must be positive")
	} else if c.Security.AccessTTL >= c.Security.RefreshTTL {
		problems = append(problems, "security.accessttl must be shorter than security.refreshttl")
	}
	if c.Hashing.Iterations < 1000 {
		problems = append(problems, "hashing.iterations must be at least 1000")
	}
	if c.Hashing.KeyLength < 16 || c.Hashing.SaltLength < 16 {
		problems = append(problems, "hashing key and salt lengths must be at least 16 bytes")
	}
	if c.MFA.Period <= 0 {
		problems = append(problems, "mfa.period must be positive")
	}
	if c.MFA.Skew > 10 {
		problems = append(problems, "mfa.skew must not exceed 10 steps")
	}
	if c.MFA.BackupCodeCount <= 0 {
		problems = append(problems, "mfa.backupcodecount must be positive")
	}
	switch c.Storage.Driver {
	case "postgres":
	case "memory":
		if !c.IsDevelopment() {
			problems = append(problems, "storage.driver memory is only allowed in development")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage.driver %q", c.Storage.Driver))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate development secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvironmentDevelopment)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("security.jwtsecret", "")
	v.SetDefault("security.issuer", "gymhub")
	v.SetDefault("security.accessttl", "15m")
	v.SetDefault("security.refreshttl", "168h") // 7 days
	v.SetDefault("security.maxsessions", 10)

	v.SetDefault("hashing.iterations", 10000)
	v.SetDefault("hashing.keylength", 64)
	v.SetDefault("hashing.saltlength", 16)
	v.SetDefault("hashing.digest", "sha512")

	v.SetDefault("mfa.issuer", "GymHub")
	v.SetDefault("mfa.period", "30s")
	v.SetDefault("mfa.skew", 2)
	v.SetDefault("mfa.digits", 6)
	v.SetDefault("mfa.backupcodecount", 10)

	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.stream", "gymhub:notifications")
	v.SetDefault("notifications.group", "notifiers")
	v.SetDefault("notifications.consumer", "worker-1")
	v.SetDefault("notifications.claiminterval", "30s")
	v.SetDefault("notifications.loginurl", "http://localhost:3000/login")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 1025)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "GymHub <no-reply@gymhub.local>")

	v.SetDefault("jobs.sessioncleanup", "0 0 3 * * *")

	v.SetDefault("bootstrap.superadminemail", "")
	v.SetDefault("bootstrap.superadminname", "Platform Owner")
	v.SetDefault("bootstrap.superadminpassword", "")

	v.SetDefault("logging.level", "")
}
