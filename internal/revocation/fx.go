package revocation

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/taskora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewStore selects the configured backend.
func NewStore(log *zap.Logger, cfg config.Config) (Store, error) {
	switch cfg.RevocationBackend {
	case "rest":
		return NewRESTStore(cfg.RevocationRestURL, cfg.RevocationRestToken)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisStore(client), nil
	case "memory":
		log.Named("revocation").Warn("using in-memory revocation store; sessions will not survive restarts")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("revocation: unknown backend %q", cfg.RevocationBackend)
	}
}

var Module = fx.Module("revocation",
	fx.Provide(NewStore),
)
