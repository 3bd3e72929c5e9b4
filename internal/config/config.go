package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	JWTSecret string `mapstructure:"jwt_secret"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	PostgresDSN string `mapstructure:"postgres_dsn"`

	PersistQueue   int           `mapstructure:"persist_queue"`
	PersistRetries int           `mapstructure:"persist_retries"`
	PersistBackoff time.Duration `mapstructure:"persist_backoff"`

	JoinRateLimit    int           `mapstructure:"join_rate_limit"`
	JoinRateInterval time.Duration `mapstructure:"join_rate_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("postgres_dsn", "host=localhost user=inkboard dbname=inkboard sslmode=disable")
	v.SetDefault("persist_queue", 256)
	v.SetDefault("persist_retries", 3)
	v.SetDefault("persist_backoff", "100ms")
	v.SetDefault("join_rate_limit", 10)
	v.SetDefault("join_rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
