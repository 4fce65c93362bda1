package extraction

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// ResilientOracle wraps the oracle client with a circuit breaker, an
// in-process LRU, and an optional shared Redis cache. When the breaker is
// open the caller sees an error and degrades to the fallback record, so a
// dead oracle cannot stall a batch on per-call timeouts.
type ResilientOracle struct {
	client  domain.ExtractionOracle
	breaker *gobreaker.CircuitBreaker
	local   *lru.LRU[string, *domain.ExtractionResult]
	shared  *RedisCache
	log     *logrus.Logger
}

// NewResilientOracle wraps client. shared may be nil when Redis caching is
// disabled.
func NewResilientOracle(client domain.ExtractionOracle, cfg domain.CacheConfig, shared *RedisCache, logger *logrus.Logger) *ResilientOracle {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 1024
	}
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "extraction-oracle",
		MaxRequests: 5,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Oracle circuit breaker state changed")
		},
	})

	return &ResilientOracle{
		client:  client,
		breaker: breaker,
		local:   lru.NewLRU[string, *domain.ExtractionResult](maxItems, nil, ttl),
		shared:  shared,
		log:     logger,
	}
}

// Extract returns a cached result when one exists, otherwise calls the
// oracle through the circuit breaker and populates both cache layers.
func (o *ResilientOracle) Extract(ctx context.Context, radiologyText, clinicalText string) (*domain.ExtractionResult, error) {
	key := cacheKey(radiologyText, clinicalText)

	if result, ok := o.local.Get(key); ok {
		return result, nil
	}

	if o.shared != nil {
		result, hit, err := o.shared.Get(ctx, radiologyText, clinicalText)
		if err != nil {
			o.log.WithError(err).Warn("Extraction cache read failed")
		} else if hit {
			o.local.Add(key, result)
			return result, nil
		}
	}

	out, err := o.breaker.Execute(func() (interface{}, error) {
		return o.client.Extract(ctx, radiologyText, clinicalText)
	})
	if err != nil {
		return nil, err
	}
	result := out.(*domain.ExtractionResult)

	o.local.Add(key, result)
	if o.shared != nil {
		if err := o.shared.Set(ctx, radiologyText, clinicalText, result); err != nil {
			o.log.WithError(err).Warn("Extraction cache write failed")
		}
	}
	return result, nil
}
