package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
)

// PredictionCache stores model predictions per (symbol, model type).
// Writers do not coordinate; the last write wins.
type PredictionCache struct {
	store Store
	log   *logging.Logger
}

// NewPredictionCache creates a new prediction cache instance
func NewPredictionCache(store Store, logger *logging.Logger) *PredictionCache {
	return &PredictionCache{
		store: store,
		log:   logger.Component("prediction_cache"),
	}
}

// PredictionKey builds the cache key for a symbol and model type
func PredictionKey(symbol, modelType string) string {
	return fmt.Sprintf("prediction:%s:%s", strings.ToUpper(symbol), modelType)
}

// Get retrieves a cached prediction. Any failure, including a payload that
// no longer decodes, is reported as a miss.
func (c *PredictionCache) Get(ctx context.Context, symbol, modelType string) (*ml.Prediction, bool) {
	if c == nil || c.store == nil {
		return nil, false
	}

	key := PredictionKey(symbol, modelType)
	var p ml.Prediction
	err := c.store.Get(ctx, key, &p)
	switch {
	case err == nil:
	case errors.Is(err, ErrCacheMiss):
		return nil, false
	case errors.Is(err, ErrCorrupt):
		c.log.Warn().Err(err).Str("key", key).Msg("discarding corrupt cached prediction")
		if delErr := c.store.Delete(ctx, key); delErr != nil {
			c.log.Debug().Err(delErr).Str("key", key).Msg("failed to delete corrupt entry")
		}
		return nil, false
	default:
		c.log.Warn().Err(err).Str("key", key).Msg("prediction cache read failed")
		return nil, false
	}

	if err := p.Validate(); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cached prediction failed validation")
		return nil, false
	}
	return &p, true
}

// Put caches a prediction for ttl
func (c *PredictionCache) Put(ctx context.Context, symbol, modelType string, p *ml.Prediction, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return fmt.Errorf("prediction cache not available")
	}
	return c.store.Set(ctx, PredictionKey(symbol, modelType), p, ttl)
}
