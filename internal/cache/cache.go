package cache

import (
	"context"
	"time"
)

// BytesCache — кэш "текущего состояния" в виде готовых байтов (JSON).
// Кэш best-effort: ошибки Get/Set не должны ломать основной поток.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
