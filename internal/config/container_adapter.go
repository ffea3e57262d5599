package config

import (
	"github.com/shopspring/decimal"

	"github.com/garyjia/p2p-approval/internal/application/service"
	"github.com/garyjia/p2p-approval/internal/container"
	"github.com/garyjia/p2p-approval/internal/infrastructure/external/openai"
	"github.com/garyjia/p2p-approval/internal/infrastructure/storage"
	"github.com/garyjia/p2p-approval/internal/infrastructure/worker"
	"github.com/garyjia/p2p-approval/pkg/database"
)

// ToContainerConfig converts the file-based Config into a container.Config.
// Load has already validated the price tolerance.
func (c *Config) ToContainerConfig() *container.Config {
	tolerance, err := decimal.NewFromString(c.Receipt.PriceTolerance)
	if err != nil {
		tolerance = decimal.Zero
	}

	return &container.Config{
		Database: database.Config{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Storage: container.StorageConfig{
			Driver:   c.Storage.Driver,
			LocalDir: c.Storage.LocalDir,
			Minio: storage.MinioConfig{
				Endpoint:  c.Storage.Minio.Endpoint,
				AccessKey: c.Storage.Minio.AccessKey,
				SecretKey: c.Storage.Minio.SecretKey,
				Bucket:    c.Storage.Minio.Bucket,
				UseSSL:    c.Storage.Minio.UseSSL,
			},
		},
		Redis: container.RedisConfig{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
			LockTTL:  c.Redis.LockTTL,
		},
		LockWaitTimeout: c.Locks.WaitTimeout,
		Auth: container.AuthConfig{
			Roles:       c.Auth.Roles,
			DefaultRole: c.Auth.DefaultRole,
		},
		Receipt: service.ValidatorConfig{
			PriceTolerance:    tolerance,
			QuantityTolerance: c.Receipt.QuantityTolerance,
		},
		Order: service.OrderConfig{
			NumberPrefix:  c.PurchaseOrder.NumberPrefix,
			DefaultVendor: c.PurchaseOrder.DefaultVendor,
		},
		CompanyName: c.PurchaseOrder.CompanyName,
		Render: worker.RenderWorkerConfig{
			PollInterval:  c.Render.PollInterval,
			BatchSize:     c.Render.BatchSize,
			MaxAttempts:   c.Render.MaxAttempts,
			RenderTimeout: c.Render.Timeout,
		},
		OpenAI: container.OpenAIConfig{
			Extractor: openai.ExtractorConfig{
				APIKey:  c.OpenAI.APIKey,
				Model:   c.OpenAI.Model,
				Timeout: c.OpenAI.Timeout,
			},
			PromptsPath: c.OpenAI.PromptsPath,
		},
	}
}
