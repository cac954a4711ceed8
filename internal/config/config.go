package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrWeakSecret = errors.New("secret must be at least 32 bytes")

type Redis struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	Secret        string        `mapstructure:"secret"`
	SessionCookie string        `mapstructure:"session_cookie"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SendBuffer    int           `mapstructure:"send_buffer"`

	StaticHookTimeout time.Duration `mapstructure:"static_hook_timeout"`
	FloodLimit        int           `mapstructure:"flood_limit"`
	FloodInterval     time.Duration `mapstructure:"flood_interval"`
	RoomPageSize      int           `mapstructure:"room_page_size"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	// TrustedProxies lists peers whose X-Forwarded-* headers are believed.
	TrustedProxies    []string      `mapstructure:"trusted_proxies"`

	// NodeID names this process in shared membership; Cluster marks a
	// multi-process deployment.
	NodeID          string        `mapstructure:"node_id"`
	Cluster         bool          `mapstructure:"cluster"`
	Redis           Redis         `mapstructure:"redis"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

func (c *Config) Development() bool { return c.Mode == "debug" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("secret", "")
	v.SetDefault("port", 8080)
	v.SetDefault("session_cookie", "pulse.sid")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 32)
	v.SetDefault("static_hook_timeout", "5s")
	v.SetDefault("flood_limit", 100)
	v.SetDefault("flood_interval", "1s")
	v.SetDefault("room_page_size", 9)
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("cluster", false)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("refresh_interval", "30s")
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). Any key can be
// overridden from the environment as PULSE_<KEY>, e.g. PULSE_REDIS_ADDR.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("pulse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Secret) < 32 {
		return nil, ErrWeakSecret
	}
	if cfg.NodeID == "" {
		cfg.NodeID, _ = os.Hostname()
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Bool("redis", cfg.Redis.Enabled).Msg("config ready")
	return &cfg, nil
}
