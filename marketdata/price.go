// Package marketdata resolves a live price for a symbol from an ordered list
// of quote sources.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/piquette/finance-go"
	"github.com/piquette/finance-go/quote"

	"vuoksi-trader/apperrors"
	"vuoksi-trader/logging"
)

// PriceSource returns the latest tradable price for a symbol
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}

// NamedSource labels a source for logging
type NamedSource struct {
	Name   string
	Source PriceSource
}

// Chain asks each source in order and returns the first positive price
type Chain struct {
	sources []NamedSource
	logger  *logging.Logger
}

// NewChain creates a fallback chain. Nil sources are skipped.
func NewChain(logger *logging.Logger, sources ...NamedSource) *Chain {
	c := &Chain{logger: logger.Component("marketdata")}
	for _, s := range sources {
		if s.Source != nil {
			c.sources = append(c.sources, s)
		}
	}
	return c
}

// LatestPrice implements PriceSource
func (c *Chain) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	var errs []error
	for _, s := range c.sources {
		price, err := s.Source.LatestPrice(ctx, symbol)
		if err == nil && validPrice(price) {
			return price, nil
		}
		if err == nil {
			err = fmt.Errorf("invalid price %v", price)
		}
		c.logger.Warn().Err(err).Str("source", s.Name).Str("symbol", symbol).Msg("price source failed")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		if ctx.Err() != nil {
			break
		}
	}
	return 0, apperrors.Wrap(apperrors.KindUpstreamUnavailable, "marketdata.LatestPrice", "price_unavailable", errors.Join(errs...))
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

// YahooQuotes reads the regular market price from Yahoo Finance
type YahooQuotes struct {
	get func(symbol string) (*finance.Quote, error)
}

// NewYahooQuotes creates a Yahoo Finance price source
func NewYahooQuotes() *YahooQuotes {
	return &YahooQuotes{get: quote.Get}
}

// LatestPrice implements PriceSource. The underlying client has no context
// support, so cancellation abandons the call rather than aborting it.
func (y *YahooQuotes) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	type result struct {
		q   *finance.Quote
		err error
	}
	ch := make(chan result, 1)
	go func() {
		q, err := y.get(strings.ToUpper(symbol))
		ch <- result{q, err}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, r.err)
		}
		if r.q == nil {
			return 0, fmt.Errorf("no quote for %s", symbol)
		}
		return r.q.RegularMarketPrice, nil
	}
}
