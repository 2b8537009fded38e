// Пакет service — бизнес-логика Collab Module.
// RevisionCache — LRU-кэш резолва ревизий с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/collab-module/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_revision_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш ревизий.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cm_revision_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша ревизий.",
	})
)

// RevisionCache — LRU-кэш резолва ревизий с автоматическим TTL.
// Кэшируются только неизменяемые результаты: поиск по UUID и по тегу.
// Головы веток мутабельны и через кэш не ходят.
// Каждый экземпляр CM имеет собственный in-memory кэш (per-instance,
// stateless архитектура).
type RevisionCache struct {
	cache *expirable.LRU[string, *model.Revision]
}

// NewRevisionCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewRevisionCache(maxSize int, ttl time.Duration) *RevisionCache {
	cache := expirable.NewLRU[string, *model.Revision](maxSize, nil, ttl)
	return &RevisionCache{cache: cache}
}

// Get возвращает ревизию из кэша по ключу.
// Возвращает (ревизия, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *RevisionCache) Get(key string) (*model.Revision, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *RevisionCache) Set(key string, rev *model.Revision) {
	c.cache.Add(key, rev)
}
