package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "CALCORE"

type Config struct {
	Server       ServerConfig              `mapstructure:"server"`
	Database     DatabaseConfig            `mapstructure:"database"`
	Redis        RedisConfig               `mapstructure:"redis"`
	Worker       WorkerConfig              `mapstructure:"worker"`
	Log          LogConfig                 `mapstructure:"log"`
	IDs          IDsConfig                 `mapstructure:"ids"`
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
	Capabilities CapabilitiesConfig        `mapstructure:"capabilities"`
	Alarm        AlarmConfig               `mapstructure:"alarm"`
	Cache        CacheConfig               `mapstructure:"cache"`
	GoogleAPI    GoogleAPIConfig           `mapstructure:"google_api"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres | sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite file
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // in minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Concurrency int    `mapstructure:"concurrency"`
	Queue       string `mapstructure:"queue"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// IDsConfig holds the well-known folder ids of the default account that are
// exposed without a composite wrapper.
type IDsConfig struct {
	ReservedFolders []string `mapstructure:"reserved_folders"`
	SharedPrefix    string   `mapstructure:"shared_prefix"`
}

// ProviderConfig overrides a built-in provider's defaults. MaxAccounts of
// zero keeps the provider default; a negative value means unlimited.
type ProviderConfig struct {
	Enabled     *bool `mapstructure:"enabled"`
	MaxAccounts int   `mapstructure:"max_accounts"`
}

type CapabilitiesConfig struct {
	// Granted lists provider ids every user may use.
	Granted []string `mapstructure:"granted"`
	// Denied maps "contextID:userID" to provider ids withheld from that user.
	Denied map[string][]string `mapstructure:"denied"`
}

type AlarmConfig struct {
	Lookahead      time.Duration `mapstructure:"lookahead"`
	MaxOccurrences int           `mapstructure:"max_occurrences"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"`
	SweepBatch     int           `mapstructure:"sweep_batch"`
}

type CacheConfig struct {
	AccountTTL time.Duration `mapstructure:"account_ttl"`
}

type GoogleAPIConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

var (
	mu       sync.RWMutex
	instance *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 7070)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "calendar")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "calendar.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("worker.enabled", false)
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.queue", "calendar")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("ids.reserved_folders", []string{"0", "1", "2", "3", "6"})
	v.SetDefault("ids.shared_prefix", "shared/")

	v.SetDefault("capabilities.granted", []string{"chronos", "birthdays", "ical", "google"})

	v.SetDefault("alarm.lookahead", "720h")
	v.SetDefault("alarm.max_occurrences", 500)
	v.SetDefault("alarm.sweep_schedule", "@every 1m")
	v.SetDefault("alarm.sweep_batch", 200)

	v.SetDefault("cache.account_ttl", "10m")

	v.SetDefault("google_api.client_id", "")
	v.SetDefault("google_api.client_secret", "")
	v.SetDefault("google_api.redirect_uri", "")
}

// Load reads an optional .env file, an optional config file at path and the
// CALCORE_* environment, then stores the result as the process config.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	instance = &cfg
	mu.Unlock()
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}
	if c.Alarm.Lookahead <= 0 {
		return fmt.Errorf("alarm.lookahead must be > 0")
	}
	if c.Alarm.SweepBatch <= 0 {
		return fmt.Errorf("alarm.sweep_batch must be > 0")
	}
	if c.Worker.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("worker requires redis.enabled")
	}
	for _, id := range c.IDs.ReservedFolders {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("ids.reserved_folders contains an empty id")
		}
	}
	return nil
}

// MaxAccountsOverrides returns the configured per-provider limits, skipping
// providers without an explicit value.
func (c *Config) MaxAccountsOverrides() map[string]int {
	out := make(map[string]int, len(c.Providers))
	for id, p := range c.Providers {
		if p.MaxAccounts != 0 {
			out[id] = p.MaxAccounts
		}
	}
	return out
}

// ProviderEnabled reports whether a provider is switched on. Providers not
// listed in the config, or listed without "enabled", are on.
func (c *Config) ProviderEnabled(id string) bool {
	p, ok := c.Providers[id]
	if !ok || p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// Get returns the loaded config and panics if Load was never called.
func Get() *Config {
	cfg, ok := GetSafe()
	if !ok {
		panic("config not initialized")
	}
	return cfg
}

func GetSafe() (*Config, bool) {
	mu.RLock()
	defer mu.RUnlock()
	return instance, instance != nil
}

// Set installs cfg as the process config.
func Set(cfg *Config) {
	mu.Lock()
	instance = cfg
	mu.Unlock()
}
