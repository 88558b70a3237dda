// Ininicializing common application configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	App       AppConfig       `mapstructure:"app"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Email     EmailConfig     `mapstructure:"email"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	AppVersion     string        `mapstructure:"app_version"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	Timeout        time.Duration `mapstructure:"timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout int           `mapstructure:"request_timeout"` // seconds
	AuthRateLimit  float64       `mapstructure:"auth_rate_limit"` // requests per second per client, 0 disables
	AuthBurst      int           `mapstructure:"auth_burst"`
	Env            string        `mapstructure:"environment"`
	Mode           string        `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AppConfig holds values used to build links that end up in emails.
type AppConfig struct {
	ClientURL string `mapstructure:"client_url"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type EmailConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	From          string        `mapstructure:"from"`
	FromName      string        `mapstructure:"from_name"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	DeadLetterKey string        `mapstructure:"dead_letter_key"`
}

type StorageConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	UseSSL      bool   `mapstructure:"use_ssl"`
	Bucket      string `mapstructure:"bucket"`
	Folder      string `mapstructure:"folder"`
	PublicURL   string `mapstructure:"public_url"`
	MaxFiles    int    `mapstructure:"max_files"`
	MaxFileSize int64  `mapstructure:"max_file_size"` // bytes
}

type SchedulerConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Timezone             string        `mapstructure:"timezone"`
	ReminderCron         string        `mapstructure:"reminder_cron"`
	UnlockCron           string        `mapstructure:"unlock_cron"`
	DeliveryCron         string        `mapstructure:"delivery_cron"`
	LockTTL              time.Duration `mapstructure:"lock_ttl"`
	MaxRecipientAttempts int           `mapstructure:"max_recipient_attempts"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Настройки пула соединений
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*viper.Viper, error) {

	viperInstance := viper.New()

	viperInstance.AddConfigPath("./config")
	viperInstance.SetConfigName("config")
	viperInstance.SetConfigType("yaml")

	setDefaults(viperInstance)

	// DATABASE_HOST overrides database.host and so on
	viperInstance.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viperInstance.AutomaticEnv()

	err := viperInstance.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return viperInstance, nil
}

func ParseConfig(v *viper.Viper) (*Config, error) {

	var c Config

	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &c, nil
}

// Location returns the zone used to compute calendar days for reminders.
func (c *SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// DefaultJWTSecret is only good for local runs; production must set JWT_SECRET.
const DefaultJWTSecret = "change-me-in-production"

// Validate rejects settings the server must not start with.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is empty")
	}
	if c.IsProduction() && c.JWT.Secret == DefaultJWTSecret {
		return errors.New("jwt.secret is the default value; set JWT_SECRET in production")
	}
	return nil
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setDefaults устанавливает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.app_version", "1.0.0")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.request_timeout", 30)
	v.SetDefault("server.auth_rate_limit", 0.2)
	v.SetDefault("server.auth_burst", 10)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.mode", "debug")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "timecapsule")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "timecapsule")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("app.client_url", "http://localhost:5173")

	// JWT defaults
	v.SetDefault("jwt.secret", DefaultJWTSecret)
	v.SetDefault("jwt.expiration", 7*24*time.Hour)

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.from", "noreply@timecapsule.local")
	v.SetDefault("email.from_name", "Digital Time Capsule")
	v.SetDefault("email.host", "smtp.gmail.com")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.max_attempts", 3)
	v.SetDefault("email.retry_delay", 2*time.Second)
	v.SetDefault("email.dead_letter_key", "timecapsule:email:dlq")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "time-capsule")
	v.SetDefault("storage.folder", "time-capsule")
	v.SetDefault("storage.public_url", "http://localhost:9000")
	v.SetDefault("storage.max_files", 10)
	v.SetDefault("storage.max_file_size", 100*1024*1024)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Local")
	v.SetDefault("scheduler.reminder_cron", "0 9 * * *")
	v.SetDefault("scheduler.unlock_cron", "0 * * * *")
	v.SetDefault("scheduler.delivery_cron", "30 * * * *")
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)
	v.SetDefault("scheduler.max_recipient_attempts", 5)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_timeout", 4*time.Second)

	v.SetDefault("log.level", "info")
}
