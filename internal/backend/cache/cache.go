package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ImageCache stores rendered PNG bytes by key. A miss is reported by ok=false, never by an error.
type ImageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
	Close() error
}

// Key builds the cache key of a rendered image. Parts that are empty are skipped.
func Key(biopsyID, modality, roiID, variant string, width int) string {
	parts := []string{"opticderm", "img", biopsyID, modality}
	for _, p := range []string{roiID, variant} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, strconv.Itoa(width))
	return strings.Join(parts, ":")
}

// NewImageCache returns the cache named by cacheType: "none", "memory" or "redis"
func NewImageCache(cacheType, address string, ttl time.Duration) (ImageCache, error) {
	switch cacheType {
	case "", "none":
		return noneCache{}, nil
	case "memory":
		return NewMemoryCache(ttl), nil
	case "redis":
		c, err := NewRedisCache(address, ttl)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheType)
	}
}

type noneCache struct{}

func (noneCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (noneCache) Set(context.Context, string, []byte) error         { return nil }
func (noneCache) Close() error                                      { return nil }
