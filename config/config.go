package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. WELD_DB_HOST.
const EnvPrefix = "WELD"

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all configuration of a node
type Config struct {
	// Server Configuration
	HTTPPort string `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`

	// Directory holding the CometBFT config, keys and data
	CometHome string `mapstructure:"comet_home"`

	Database Database `mapstructure:"db"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Auth     Auth     `mapstructure:"auth"`
	SMTP     SMTP     `mapstructure:"smtp"`
	Admin    Admin    `mapstructure:"admin"`

	// Hex encoded AES-256 key for ledger payloads
	EncryptionKey string `mapstructure:"encryption_key"`

	// External welding model, run as Command Args... <four properties>
	PredictorCommand string   `mapstructure:"predictor_command"`
	PredictorArgs    []string `mapstructure:"predictor_args"`
}

type Database struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	Name       string `mapstructure:"name"`
}

type Ledger struct {
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
}

type Auth struct {
	AccessSecret  string `mapstructure:"access_secret"`
	RefreshSecret string `mapstructure:"refresh_secret"`
}

// SMTP is optional; without a host notifications are only logged.
type SMTP struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
	From string `mapstructure:"from"`
}

// Admin is the account seeded when no admin exists yet.
type Admin struct {
	Name     string `mapstructure:"name"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_port", "5000")
	v.SetDefault("log_level", "info")
	v.SetDefault("comet_home", "./node-config")

	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.sqlite_path", "weldledger.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.pass", "")
	v.SetDefault("db.name", "weldledger")

	v.SetDefault("ledger.write_timeout", 30*time.Second)
	v.SetDefault("ledger.read_timeout", 10*time.Second)

	v.SetDefault("auth.access_secret", "")
	v.SetDefault("auth.refresh_secret", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("admin.name", "Administrator")
	v.SetDefault("admin.email", "admin@localhost")
	v.SetDefault("admin.password", "")

	v.SetDefault("encryption_key", "")
	v.SetDefault("predictor_command", "")
	v.SetDefault("predictor_args", []string{})
}

// Load reads defaults, then the optional file at path, then WELD_*
// environment variables, later sources winning.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &c, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Pass,
		c.Database.Name,
	)
}

// Key decodes the encryption key.
func (c *Config) Key() ([]byte, error) {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("WELD_ENCRYPTION_KEY is not valid hex")
	}
	if len(key) != encryption.KeySize {
		return nil, fmt.Errorf("WELD_ENCRYPTION_KEY must be %d bytes, got %d", encryption.KeySize, len(key))
	}
	return key, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.EncryptionKey == "" {
		return fmt.Errorf("WELD_ENCRYPTION_KEY is required")
	}
	if _, err := c.Key(); err != nil {
		return err
	}
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return fmt.Errorf("WELD_AUTH_ACCESS_SECRET and WELD_AUTH_REFRESH_SECRET are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return fmt.Errorf("access and refresh secrets must differ")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("WELD_DB_SQLITE_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("WELD_DB_HOST and WELD_DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.HTTPPort == "" {
		return fmt.Errorf("WELD_HTTP_PORT is required")
	}
	return nil
}
