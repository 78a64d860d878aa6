package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vuoksi-trader/logging"
	"vuoksi-trader/ml"
)

func samplePrediction() *ml.Prediction {
	return &ml.Prediction{
		Symbol:         "AAPL",
		ModelType:      "lstm",
		PredictedPrice: 180,
		Confidence:     0.85,
		GeneratedAt:    time.Date(2024, 5, 1, 14, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStoreRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	require.NoError(t, s.Set(ctx, "k", map[string]int{"a": 1}, 50*time.Millisecond))
	var got map[string]int
	require.NoError(t, s.Get(ctx, "k", &got))
	assert.Equal(t, 1, got["a"])

	time.Sleep(80 * time.Millisecond)
	assert.ErrorIs(t, s.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestPredictionCacheHitAndMiss(t *testing.T) {
	ctx := context.Background()
	pc := NewPredictionCache(NewMemoryStore(time.Minute), logging.NewSilentLogger())

	_, ok := pc.Get(ctx, "AAPL", "lstm")
	assert.False(t, ok)

	require.NoError(t, pc.Put(ctx, "aapl", "lstm", samplePrediction(), time.Hour))

	got, ok := pc.Get(ctx, "AAPL", "lstm")
	require.True(t, ok)
	assert.Equal(t, 180.0, got.PredictedPrice)
	assert.Equal(t, 0.85, got.Confidence)

	_, ok = pc.Get(ctx, "AAPL", "xgboost")
	assert.False(t, ok, "model type is part of the key")
}

func TestPredictionCacheCorruptPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	pc := NewPredictionCache(store, logging.NewSilentLogger())

	key := PredictionKey("AAPL", "lstm")
	store.items.Set(key, []byte(`{"predicted_price": "oops`), time.Hour)

	_, ok := pc.Get(ctx, "AAPL", "lstm")
	assert.False(t, ok)

	_, present := store.items.Get(key)
	assert.False(t, present, "corrupt entry is removed")
}

func TestPredictionCacheInvalidPayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	pc := NewPredictionCache(store, logging.NewSilentLogger())

	bad := samplePrediction()
	bad.Confidence = 3
	require.NoError(t, store.Set(ctx, PredictionKey("AAPL", "lstm"), bad, time.Hour))

	_, ok := pc.Get(ctx, "AAPL", "lstm")
	assert.False(t, ok)
}

func TestNilPredictionCache(t *testing.T) {
	var pc *PredictionCache
	_, ok := pc.Get(context.Background(), "AAPL", "lstm")
	assert.False(t, ok)
	assert.Error(t, pc.Put(context.Background(), "AAPL", "lstm", samplePrediction(), time.Hour))
}

func TestMemoryLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(nil, logging.NewSilentLogger())

	release, ok, err := l.Acquire(ctx, "trade:1:AAPL", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "trade:1:AAPL", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held")

	_, ok, _ = l.Acquire(ctx, "trade:2:AAPL", time.Minute)
	assert.True(t, ok, "different key is independent")

	release()
	_, ok, _ = l.Acquire(ctx, "trade:1:AAPL", time.Minute)
	assert.True(t, ok, "acquire after release")
}

func TestMemoryLockerConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(nil, logging.NewSilentLogger())

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := l.Acquire(ctx, "trade:7:MSFT", time.Minute); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}
