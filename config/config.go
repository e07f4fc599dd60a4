package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Device     DeviceConfig     `yaml:"device"`
	Enrollment EnrollmentConfig `yaml:"enrollment"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DeviceConfig holds the fingerprint scanner connection configuration.
type DeviceConfig struct {
	// Ports is the ordered list of serial port candidates. The literal
	// value "auto" selects a port by discovery heuristic. An empty list
	// behaves as ["auto"].
	Ports                 []string      `yaml:"ports"`
	BaudRate              int           `yaml:"baud_rate"`
	ReconnectDelaySeconds int           `yaml:"reconnect_delay_seconds"`
	ReconnectDelay        time.Duration `yaml:"-"`
}

// EnrollmentConfig holds the enrollment handshake tuning.
type EnrollmentConfig struct {
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
	SettleDelayMs  int           `yaml:"settle_delay_ms"`
	SettleDelay    time.Duration `yaml:"-"`
}

// AttendanceConfig holds the attendance recording configuration.
type AttendanceConfig struct {
	CooldownSeconds int           `yaml:"cooldown_seconds"`
	Cooldown        time.Duration `yaml:"-"`
	Timezone        string        `yaml:"timezone"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if len(cfg.Device.Ports) == 0 {
		cfg.Device.Ports = []string{"auto"}
	}
	if cfg.Device.BaudRate <= 0 {
		cfg.Device.BaudRate = 9600
	}
	if cfg.Device.ReconnectDelaySeconds <= 0 {
		cfg.Device.ReconnectDelaySeconds = 3
	}
	cfg.Device.ReconnectDelay = time.Duration(cfg.Device.ReconnectDelaySeconds) * time.Second

	if cfg.Enrollment.TimeoutSeconds <= 0 {
		cfg.Enrollment.TimeoutSeconds = 90
	}
	cfg.Enrollment.Timeout = time.Duration(cfg.Enrollment.TimeoutSeconds) * time.Second
	if cfg.Enrollment.SettleDelayMs <= 0 {
		cfg.Enrollment.SettleDelayMs = 500
	}
	cfg.Enrollment.SettleDelay = time.Duration(cfg.Enrollment.SettleDelayMs) * time.Millisecond

	if cfg.Attendance.CooldownSeconds <= 0 {
		cfg.Attendance.CooldownSeconds = 60
	}
	cfg.Attendance.Cooldown = time.Duration(cfg.Attendance.CooldownSeconds) * time.Second
	if cfg.Attendance.Timezone == "" {
		cfg.Attendance.Timezone = "Local"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
