// Package container provides dependency injection and lifecycle management
// for the purchase approval service.
package container

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/p2p-approval/internal/application/service"
	"github.com/garyjia/p2p-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/p2p-approval/internal/infrastructure/storage"
	"github.com/garyjia/p2p-approval/internal/infrastructure/worker"
	"github.com/garyjia/p2p-approval/pkg/database"
)

// Config holds all configuration for the Container.
type Config struct {
	Database database.Config

	Storage StorageConfig

	// Redis enables the distributed lock when Addr is set
	Redis RedisConfig

	// LockWaitTimeout bounds how long a transition waits for its request
	LockWaitTimeout time.Duration

	Auth AuthConfig

	Receipt service.ValidatorConfig

	Order service.OrderConfig

	// CompanyName brands rendered documents and the order register
	CompanyName string

	Render worker.RenderWorkerConfig

	OpenAI OpenAIConfig
}

// StorageConfig selects the blob store
type StorageConfig struct {
	Driver   string
	LocalDir string
	Minio    storage.MinioConfig
}

// RedisConfig holds lock server settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// AuthConfig maps actors to workflow roles
type AuthConfig struct {
	Roles       map[string]string
	DefaultRole string
}

// OpenAIConfig holds receipt extraction settings
type OpenAIConfig struct {
	Extractor   openai.ExtractorConfig
	PromptsPath string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			Path:            "data/p2p.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Storage: StorageConfig{
			Driver:   "local",
			LocalDir: "data/documents",
		},
		Redis: RedisConfig{
			LockTTL: 30 * time.Second,
		},
		LockWaitTimeout: 10 * time.Second,
		Auth: AuthConfig{
			DefaultRole: "staff",
		},
		Receipt: service.ValidatorConfig{
			PriceTolerance: decimal.Zero,
		},
		Order: service.OrderConfig{
			NumberPrefix: "PO",
		},
		CompanyName: "Procure-to-Pay",
		Render:      worker.DefaultRenderWorkerConfig(),
		OpenAI: OpenAIConfig{
			Extractor: openai.ExtractorConfig{
				Model:   "gpt-4o-mini",
				Timeout: 30 * time.Second,
			},
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	return nil
}
