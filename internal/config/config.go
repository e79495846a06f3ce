package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	Secret     string        `mapstructure:"secret"`

	Log      LogConfig      `mapstructure:"log"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Database DatabaseConfig `mapstructure:"database"`
	Document DocumentConfig `mapstructure:"document"`
	Activity ActivityConfig `mapstructure:"activity"`
	Voice    VoiceConfig    `mapstructure:"voice"`
	Exec     ExecConfig     `mapstructure:"exec"`
	Rate     RateConfig     `mapstructure:"rate"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// DatabaseConfig selects the postgres store; an empty URL means the
// in-memory store.
type DatabaseConfig struct {
	URL         string `mapstructure:"url"`
	TablePrefix string `mapstructure:"table_prefix"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	MaxConns    int32  `mapstructure:"max_conns"`
}

type DocumentConfig struct {
	QuietPeriod    time.Duration `mapstructure:"quiet_period"`
	MaxDeferral    time.Duration `mapstructure:"max_deferral"`
	FlushTimeout   time.Duration `mapstructure:"flush_timeout"`
	VersionOnFlush bool          `mapstructure:"version_on_flush"`
}

type ActivityConfig struct {
	QueueSize int           `mapstructure:"queue_size"`
	Workers   int           `mapstructure:"workers"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type VoiceConfig struct {
	ICEServers    []string `mapstructure:"ice_servers"`
	TargetedRelay bool     `mapstructure:"targeted_relay"`
}

type ExecConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	WorkDir string        `mapstructure:"work_dir"`
}

type RateConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 256)
	v.SetDefault("secret", "codesync-dev-secret")

	v.SetDefault("log.level", "info")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("cors.origins", []string{"http://localhost:5173"})

	v.SetDefault("database.url", "")
	v.SetDefault("database.table_prefix", "")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_conns", 10)

	v.SetDefault("document.quiet_period", "5s")
	v.SetDefault("document.max_deferral", "30s")
	v.SetDefault("document.flush_timeout", "5s")
	v.SetDefault("document.version_on_flush", true)

	v.SetDefault("activity.queue_size", 1024)
	v.SetDefault("activity.workers", 2)
	v.SetDefault("activity.timeout", "5s")

	v.SetDefault("voice.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("voice.targeted_relay", false)

	v.SetDefault("exec.timeout", "10s")
	v.SetDefault("exec.work_dir", "")

	v.SetDefault("rate.events_per_second", 50.0)
	v.SetDefault("rate.burst", 100)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}

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

	v.SetEnvPrefix("CODESYNC")
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
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Bool("postgres", cfg.Database.URL != "").
		Bool("auth", cfg.Auth.JWTSecret != "").
		Msg("config ready")
	return &cfg, nil
}
