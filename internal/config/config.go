package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"outbound-crm/internal/domain"
	"outbound-crm/pkg/utils"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should read raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Store  StoreConfig
	Redis  RedisConfig
	Sync   SyncConfig
	Policy PolicyConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV"`
	Port int    `env:"APP_PORT" envDefault:"8080"`
}

type DBConfig struct {
	Host     string `env:"DB_HOST"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// SSLMode accepts disable, require, verify-ca, verify-full.
	SSLMode string `env:"DB_SSLMODE"`

	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"false"`
}

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
}

const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkAMQP  = "amqp"
	SinkNone  = "none"
)

// SyncConfig selects where CRM-sync events go.
type SyncConfig struct {
	Sink         string `env:"SYNC_SINK" envDefault:"log"`
	RedisStream  string `env:"SYNC_REDIS_STREAM" envDefault:"crm:sync"`
	Buffer       int    `env:"SYNC_BUFFER" envDefault:"256"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"crm.sync"`
}

// MaxBulkLimit caps a single bulk eligibility listing.
const MaxBulkLimit = 500

type PolicyConfig struct {
	Cooldown  time.Duration `env:"CALL_COOLDOWN" envDefault:"24h"`
	DailyCap  int           `env:"FATIGUE_DAILY_CAP" envDefault:"3"`
	WeeklyCap int           `env:"FATIGUE_WEEKLY_CAP" envDefault:"10"`
	Timezone  string        `env:"FATIGUE_TIMEZONE" envDefault:"UTC"`

	BulkDefaultLimit int `env:"BULK_DEFAULT_LIMIT" envDefault:"50"`
	BulkConcurrency  int `env:"BULK_CONCURRENCY" envDefault:"8"`

	RejectAmbiguousContacts bool `env:"REJECT_AMBIGUOUS_CONTACTS" envDefault:"false"`
}

// Load parses the process environment and validates it.
func Load() (Config, error) {
	return load(env.Options{})
}

// LoadFrom is Load over an explicit environment, for tests and tooling.
func LoadFrom(environ map[string]string) (Config, error) {
	return load(env.Options{Environment: environ})
}

func load(opts env.Options) (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Config{}, fmt.Errorf("config parse: %w", err)
	}
	c.trim()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) trim() {
	c.App.Env = strings.TrimSpace(c.App.Env)
	c.DB.Host = strings.TrimSpace(c.DB.Host)
	c.DB.User = strings.TrimSpace(c.DB.User)
	c.DB.Name = strings.TrimSpace(c.DB.Name)
	c.DB.SSLMode = strings.TrimSpace(c.DB.SSLMode)
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Redis.Host = strings.TrimSpace(c.Redis.Host)
	c.Sync.Sink = strings.ToLower(strings.TrimSpace(c.Sync.Sink))
	c.Policy.Timezone = strings.TrimSpace(c.Policy.Timezone)
}

// Validate collects every problem into one error and fills environment-aware defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		errs = append(errs, c.validateDB()...)
	case StoreDriverMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, memory, got %q", c.Store.Driver))
	}

	switch c.Sync.Sink {
	case SinkLog, SinkNone:
	case SinkRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when SYNC_SINK=redis"))
		}
		if !validPort(c.Redis.Port) {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
		if strings.TrimSpace(c.Sync.RedisStream) == "" {
			errs = append(errs, errors.New("SYNC_REDIS_STREAM must not be empty"))
		}
	case SinkAMQP:
		if strings.TrimSpace(c.Sync.AMQPURL) == "" {
			errs = append(errs, errors.New("AMQP_URL is required when SYNC_SINK=amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("SYNC_SINK must be one of log, redis, amqp, none, got %q", c.Sync.Sink))
	}
	if c.Sync.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_BUFFER must be > 0, got %d", c.Sync.Buffer))
	}

	if c.Policy.Cooldown <= 0 {
		errs = append(errs, fmt.Errorf("CALL_COOLDOWN must be > 0, got %s", c.Policy.Cooldown))
	}
	if c.Policy.DailyCap <= 0 {
		errs = append(errs, fmt.Errorf("FATIGUE_DAILY_CAP must be > 0, got %d", c.Policy.DailyCap))
	}
	if c.Policy.WeeklyCap < c.Policy.DailyCap {
		errs = append(errs, fmt.Errorf("FATIGUE_WEEKLY_CAP must be >= FATIGUE_DAILY_CAP, got %d", c.Policy.WeeklyCap))
	}
	if c.Policy.Timezone == "" {
		c.Policy.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Policy.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("FATIGUE_TIMEZONE: %w", err))
	}
	if c.Policy.BulkDefaultLimit <= 0 || c.Policy.BulkDefaultLimit > MaxBulkLimit {
		errs = append(errs, fmt.Errorf("BULK_DEFAULT_LIMIT must be in 1..%d, got %d", MaxBulkLimit, c.Policy.BulkDefaultLimit))
	}
	if c.Policy.BulkConcurrency <= 0 {
		c.Policy.BulkConcurrency = 8
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// PostgresDSN contains the password. Never log it.
func (c Config) PostgresDSN() string {
	return utils.PostgresDSN(c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

func (c Config) RedisAddr() string {
	return utils.RedisAddr(c.Redis.Host, c.Redis.Port)
}

// DomainPolicy converts the policy knobs into the engine's Policy.
// Validate has already checked the timezone.
func (c Config) DomainPolicy() domain.Policy {
	loc, err := time.LoadLocation(c.Policy.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return domain.Policy{
		Cooldown:  c.Policy.Cooldown,
		DailyCap:  c.Policy.DailyCap,
		WeeklyCap: c.Policy.WeeklyCap,
		Location:  loc,
	}.WithDefaults()
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
