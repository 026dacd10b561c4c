// cache.go — кэш результатов проверки токенов.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package auth

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша токенов.
var (
	tokenCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_token_cache_hits_total",
		Help: "Общее количество попаданий в кэш проверенных токенов.",
	})
	tokenCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mb_token_cache_misses_total",
		Help: "Общее количество промахов кэша проверенных токенов.",
	})
)

// TokenCache — LRU-кэш идентичностей по SHA-256 токена с TTL.
// TTL записи не продлевает срок токена: Validator сверяет exp при каждом попадании.
type TokenCache struct {
	cache *expirable.LRU[string, Identity]
}

// NewTokenCache создаёт кэш. maxSize <= 0 — кэш отключён (возвращается nil).
func NewTokenCache(maxSize int, ttl time.Duration) *TokenCache {
	if maxSize <= 0 {
		return nil
	}
	return &TokenCache{cache: expirable.NewLRU[string, Identity](maxSize, nil, ttl)}
}

// Get возвращает идентичность по ключу и обновляет метрики hit/miss.
func (c *TokenCache) Get(key string) (Identity, bool) {
	id, ok := c.cache.Get(key)
	if ok {
		tokenCacheHitsTotal.Inc()
		return id, true
	}
	tokenCacheMissesTotal.Inc()
	return Identity{}, false
}

// Add добавляет запись.
func (c *TokenCache) Add(key string, id Identity) {
	c.cache.Add(key, id)
}

// Remove удаляет запись.
func (c *TokenCache) Remove(key string) {
	c.cache.Remove(key)
}

// Len — число записей.
func (c *TokenCache) Len() int {
	return c.cache.Len()
}
