package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/qianghan/docvault/cmd/docvault/repository"
	"github.com/qianghan/docvault/cmd/docvault/service"
	"github.com/qianghan/docvault/common/blobstore"
	"github.com/qianghan/docvault/common/bootstrap"
	"github.com/qianghan/docvault/common/cache"
	"github.com/qianghan/docvault/common/locking"
	rediscommon "github.com/qianghan/docvault/common/redis"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client // nil unless the redis blob backend is selected

	// Storage
	Store repository.Store
	Blobs blobstore.Store
	Locks *locking.Manager

	// Services
	Indexer         *service.QueueIndexer
	DocumentService *service.DocumentService
	VersionService  *service.VersionService
	UploadService   *service.UploadService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	// Metadata store, selected by backend
	var store repository.Store
	switch cfg.Database.Backend {
	case "postgres":
		if components.DB == nil {
			return nil, fmt.Errorf("postgres metadata backend selected but no database connection")
		}
		store = repository.NewPostgresStore(components.DB)
	case "memory":
		store = repository.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown metadata backend: %s", cfg.Database.Backend)
	}

	// Blob store, selected by backend
	c := &Container{Components: components}
	var blobs blobstore.Store
	switch cfg.Blob.Backend {
	case "local":
		local, err := blobstore.NewLocal(cfg.Blob.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create local blob store: %w", err)
		}
		blobs = local
	case "redis":
		raw := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.Redis = rediscommon.NewClient(raw, components.Logger)
		blobs = blobstore.NewRedisStore(c.Redis)
	case "memory":
		blobs = blobstore.NewMemory()
	default:
		return nil, fmt.Errorf("unknown blob backend: %s", cfg.Blob.Backend)
	}

	locks := locking.NewManager(cfg.Locking.AcquireTimeout, components.Logger)

	// Initialize services (bottom-up: dependencies first)
	var indexer *service.QueueIndexer
	if components.Queue != nil {
		indexer = service.NewQueueIndexer(components.Queue, components.Logger)
	}

	documentService := service.NewDocumentService(
		store,
		blobs,
		locks,
		metaCache(components),
		cfg.Cache.DefaultTTL,
		components.Logger,
	)

	versionService := service.NewVersionService(
		store,
		blobs,
		locks,
		metaCache(components),
		components.DiskCache,
		indexerOrNil(indexer),
		cfg.Cache.DefaultTTL,
		components.Logger,
	)

	uploadService, err := service.NewUploadService(
		cfg.Upload.SpoolDir,
		cfg.Upload.DefaultChunkSize,
		cfg.Upload.SessionTTL,
		cfg.Upload.SweepInterval,
		components.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload service: %w", err)
	}

	c.Store = store
	c.Blobs = blobs
	c.Locks = locks
	c.Indexer = indexer
	c.DocumentService = documentService
	c.VersionService = versionService
	c.UploadService = uploadService
	return c, nil
}

// metaCache keeps the service-level cache parameter a true nil when the
// memory tier is disabled, rather than a nil wrapped in an interface.
func metaCache(components *bootstrap.Components) cache.Cache {
	if components.MemoryCache == nil {
		return nil
	}
	return components.MemoryCache
}

func indexerOrNil(indexer *service.QueueIndexer) service.Indexer {
	if indexer == nil {
		return nil
	}
	return indexer
}

