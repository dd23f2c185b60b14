package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode        string        `mapstructure:"mode"`
	Port        int           `mapstructure:"port"`
	ReadLimit   int64         `mapstructure:"read_limit"`
	PingPeriod  time.Duration `mapstructure:"ping_period"`
	Secret      string        `mapstructure:"secret"`
	GraceWindow time.Duration `mapstructure:"grace_window"`
	InviteTTL   time.Duration `mapstructure:"invite_ttl"`
	DBPath      string        `mapstructure:"db_path"`
	GeoEndpoint string        `mapstructure:"geo_endpoint"`
	GeoCache    int           `mapstructure:"geo_cache"`
	RateLimit   int           `mapstructure:"rate_limit"`
	RateWindow  time.Duration `mapstructure:"rate_window"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("grace_window", "12s")
	v.SetDefault("invite_ttl", "30s")
	v.SetDefault("db_path", "peervoice.db")
	v.SetDefault("geo_endpoint", "")
	v.SetDefault("geo_cache", 4096)
	v.SetDefault("rate_limit", 60)
	v.SetDefault("rate_window", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Grace: %s | InviteTTL: %s\n", cfg.Mode, cfg.Port, cfg.GraceWindow, cfg.InviteTTL)
	return &cfg, nil
}
