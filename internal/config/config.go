package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	MaxCodeBytes int    `mapstructure:"max_code_bytes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Name      string        `mapstructure:"name"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	PollWait    time.Duration `mapstructure:"poll_wait"`
}

type RuntimeConfig struct {
	Image          string        `mapstructure:"image"`
	Interpreter    string        `mapstructure:"interpreter"`
	WorkDir        string        `mapstructure:"workdir"`
	User           string        `mapstructure:"user"`
	PullMissing    bool          `mapstructure:"pull_missing"`
	KillAfter      int           `mapstructure:"kill_after"`
	MaxOutput      string        `mapstructure:"max_output"`
	ReleaseTimeout time.Duration `mapstructure:"release_timeout"`
}

type LimitsConfig struct {
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	Memory            string `mapstructure:"memory"`
	MaxTimeoutSeconds int    `mapstructure:"max_timeout_seconds"`
	Pids              int64  `mapstructure:"pids"`
}

type ReaperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	OlderThan time.Duration `mapstructure:"older_than"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type RateLimitConfig struct {
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
	GlobalRPS float64 `mapstructure:"global_rps"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Runtime   RuntimeConfig   `mapstructure:"runtime"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Reaper    ReaperConfig    `mapstructure:"reaper"`
	Log       LogConfig       `mapstructure:"log"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.max_code_bytes", 64<<10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.name", "ceejudge:jobs")
	v.SetDefault("queue.result_ttl", 24*time.Hour)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_wait", 5*time.Second)

	v.SetDefault("runtime.image", "python:3.10-slim")
	v.SetDefault("runtime.interpreter", "python")
	v.SetDefault("runtime.workdir", "/app")
	v.SetDefault("runtime.user", "nobody")
	v.SetDefault("runtime.pull_missing", false)
	v.SetDefault("runtime.kill_after", 1)
	v.SetDefault("runtime.max_output", "8MiB")
	v.SetDefault("runtime.release_timeout", 15*time.Second)

	v.SetDefault("limits.timeout_seconds", 10)
	v.SetDefault("limits.memory", "256m")
	v.SetDefault("limits.max_timeout_seconds", 60)
	v.SetDefault("limits.pids", 64)

	v.SetDefault("reaper.interval", time.Minute)
	v.SetDefault("reaper.older_than", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("ratelimit.rps", 5)
	v.SetDefault("ratelimit.burst", 10)
	v.SetDefault("ratelimit.global_rps", 200)
}

// Load reads defaults, then ceejudge.yaml (or path when given), then
// CEEJUDGE_* variables. A .env file in the working directory is loaded into
// the environment first if present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CEEJUDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ceejudge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ceejudge")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Limits.TimeoutSeconds < 1 {
		return fmt.Errorf("limits.timeout_seconds must be at least 1, got %d", c.Limits.TimeoutSeconds)
	}
	if c.Limits.MaxTimeoutSeconds < c.Limits.TimeoutSeconds {
		return fmt.Errorf("limits.max_timeout_seconds (%d) is below limits.timeout_seconds (%d)", c.Limits.MaxTimeoutSeconds, c.Limits.TimeoutSeconds)
	}
	if _, err := units.RAMInBytes(c.Limits.Memory); err != nil {
		return fmt.Errorf("limits.memory: %w", err)
	}
	if _, err := c.MaxOutputBytes(); err != nil {
		return err
	}
	return nil
}

// MaxOutputBytes parses runtime.max_output ("8MiB", "1m", ...).
func (c *Config) MaxOutputBytes() (int64, error) {
	n, err := units.RAMInBytes(c.Runtime.MaxOutput)
	if err != nil {
		return 0, fmt.Errorf("runtime.max_output: %w", err)
	}
	return n, nil
}
