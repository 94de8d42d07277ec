package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
// Útil para desarrollo, testing y despliegues de una sola réplica.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente de cache en memoria. Las entradas vencidas se purgan cada minuto.
func NewMemory(prefix string) *memoryClient {
	return &memoryClient{
		prefix: prefix,
		c:      gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (c *memoryClient) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (c *memoryClient) Get(ctx context.Context, key string) (string, error) {
	v, ok := c.c.Get(c.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (c *memoryClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.c.Set(c.key(key), value, ttlOrForever(ttl))
	return nil
}

// SetNX usa Add de go-cache, que es atómico y falla si la key existe y no venció.
func (c *memoryClient) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := c.c.Add(c.key(key), value, ttlOrForever(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *memoryClient) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	k := c.key(key)
	for i := 0; i < 2; i++ {
		if err := c.c.Add(k, int64(1), ttlOrForever(ttl)); err == nil {
			return 1, ttl, nil
		}
		n, err := c.c.IncrementInt64(k, 1)
		if err != nil {
			// Venció entre Add e Increment: la próxima vuelta abre una ventana nueva.
			continue
		}
		remaining := ttl
		if _, exp, ok := c.c.GetWithExpiration(k); ok && !exp.IsZero() {
			remaining = time.Until(exp)
		}
		return n, remaining, nil
	}
	return 0, 0, fmt.Errorf("cache: incr %s: counter churn", key)
}

func (c *memoryClient) Delete(ctx context.Context, key string) error {
	c.c.Delete(c.key(key))
	return nil
}

func (c *memoryClient) Ping(ctx context.Context) error {
	return nil
}

func (c *memoryClient) Close() error {
	c.c.Flush()
	return nil
}
