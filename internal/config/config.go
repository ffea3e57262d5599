package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logger        LoggerConfig        `mapstructure:"logger"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Locks         LocksConfig         `mapstructure:"locks"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Receipt       ReceiptConfig       `mapstructure:"receipt"`
	PurchaseOrder PurchaseOrderConfig `mapstructure:"purchase_order"`
	Render        RenderConfig        `mapstructure:"render"`
	OpenAI        OpenAIConfig        `mapstructure:"openai"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// StorageConfig selects where uploaded and rendered documents live
type StorageConfig struct {
	Driver   string      `mapstructure:"driver"` // local or minio
	LocalDir string      `mapstructure:"local_dir"`
	Minio    MinioConfig `mapstructure:"minio"`
}

// MinioConfig holds S3-compatible object storage settings
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RedisConfig enables the distributed request lock when Addr is set
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
}

// LocksConfig holds request lock settings
type LocksConfig struct {
	WaitTimeout time.Duration `mapstructure:"wait_timeout"`
}

// AuthConfig holds token verification and role assignments
type AuthConfig struct {
	JWTSecret   string            `mapstructure:"jwt_secret"`
	Issuer      string            `mapstructure:"issuer"`
	DefaultRole string            `mapstructure:"default_role"`
	Roles       map[string]string `mapstructure:"roles"`
}

// ReceiptConfig holds receipt matching tolerances
type ReceiptConfig struct {
	PriceTolerance    string `mapstructure:"price_tolerance"`
	QuantityTolerance int    `mapstructure:"quantity_tolerance"`
}

// PurchaseOrderConfig holds order numbering and document settings
type PurchaseOrderConfig struct {
	NumberPrefix  string `mapstructure:"number_prefix"`
	DefaultVendor string `mapstructure:"default_vendor"`
	CompanyName   string `mapstructure:"company_name"`
}

// RenderConfig holds background document rendering settings
type RenderConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds receipt extraction settings. An empty key disables the model.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// Load loads configuration from file and environment variables.
// An empty path skips the file and uses defaults plus environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("database.path", "data/p2p.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "data/documents")
	v.SetDefault("storage.minio.bucket", "p2p-documents")

	v.SetDefault("redis.lock_ttl", 30*time.Second)
	v.SetDefault("locks.wait_timeout", 10*time.Second)

	v.SetDefault("auth.default_role", "staff")

	v.SetDefault("receipt.price_tolerance", "0")
	v.SetDefault("receipt.quantity_tolerance", 0)

	v.SetDefault("purchase_order.number_prefix", "PO")
	v.SetDefault("purchase_order.company_name", "Procure-to-Pay")

	v.SetDefault("render.poll_interval", 10*time.Second)
	v.SetDefault("render.batch_size", 10)
	v.SetDefault("render.max_attempts", 5)
	v.SetDefault("render.timeout", 30*time.Second)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 30*time.Second)
}

// bindEnvVars binds secrets to their conventional environment names
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("storage.minio.access_key", "MINIO_ACCESS_KEY")
	_ = v.BindEnv("storage.minio.secret_key", "MINIO_SECRET_KEY")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local driver")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required for the minio driver")
		}
		if c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.bucket is required for the minio driver")
		}
	default:
		return fmt.Errorf("storage.driver must be local or minio, got %q", c.Storage.Driver)
	}

	if tol, err := decimal.NewFromString(c.Receipt.PriceTolerance); err != nil || tol.IsNegative() {
		return fmt.Errorf("receipt.price_tolerance must be a non-negative decimal, got %q", c.Receipt.PriceTolerance)
	}
	if c.Receipt.QuantityTolerance < 0 {
		return fmt.Errorf("receipt.quantity_tolerance must not be negative")
	}
	if c.Render.MaxAttempts < 1 {
		return fmt.Errorf("render.max_attempts must be at least 1")
	}

	return nil
}
