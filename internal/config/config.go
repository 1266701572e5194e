package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type HTTPConfig struct {
	Port               int           `mapstructure:"port"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
	RateLimitRPS       int           `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int           `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	ConnectInterval time.Duration `mapstructure:"connect_interval"`
}

// DSN returns a postgres connection URL for the pgx driver.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

// envBindings keeps the conventional postgres variable names working
// alongside the DATABASE_* names produced by AutomaticEnv.
var envBindings = map[string]string{
	"database.host":     "POSTGRES_HOST",
	"database.port":     "POSTGRES_PORT",
	"database.name":     "POSTGRES_DB",
	"database.user":     "POSTGRES_USER",
	"database.password": "POSTGRES_PASSWORD",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.timeout", "15s")
	v.SetDefault("http.request_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.cors_allowed_origins", []string{"*"})
	v.SetDefault("http.rate_limit_rps", 0)
	v.SetDefault("http.rate_limit_burst", 10)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5431")
	v.SetDefault("database.name", "app")
	v.SetDefault("database.user", "app")
	v.SetDefault("database.password", "secret")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.connect_attempts", 10)
	v.SetDefault("database.connect_interval", "1s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "10m")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "advert-service")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.version", "dev")

	v.SetDefault("logger.level", "info")
}

// LoadConfig reads config.yaml from the given paths (the working directory
// when none are given). A missing file is not an error: defaults and the
// environment are enough to run.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		auto := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, auto); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &config, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	return config
}
