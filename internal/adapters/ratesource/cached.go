// Package ratesource decorates a rate source with caching and failure isolation.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	portssvc "github.com/SscSPs/money_transfer_engine/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_engine/internal/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const keyPrefix = "fx:"

// CachedRateProvider serves rates from Redis and falls back to the wrapped source on a miss.
// A Redis outage degrades to uncached lookups; it never fails a quote.
type CachedRateProvider struct {
	client redis.UniversalClient
	source portssvc.RateSource
	ttl    time.Duration
}

var _ portssvc.RateSource = (*CachedRateProvider)(nil)

// NewCachedRateProvider wraps source with a Redis cache whose entries live for ttl.
func NewCachedRateProvider(client redis.UniversalClient, source portssvc.RateSource, ttl time.Duration) *CachedRateProvider {
	return &CachedRateProvider{client: client, source: source, ttl: ttl}
}

func pairKey(from, to string) string {
	return keyPrefix + "pair:" + strings.ToUpper(from) + ":" + strings.ToUpper(to)
}

func tableKey(base string) string {
	return keyPrefix + "table:" + strings.ToUpper(base)
}

func (c *CachedRateProvider) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	key := pairKey(fromCurrency, toCurrency)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if rate, perr := decimal.NewFromString(cached); perr == nil {
			return rate, nil
		}
		logger.Warn("Discarding malformed cached rate", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		logger.Warn("Rate cache unavailable", slog.String("error", err.Error()))
	}

	rate, err := c.source.GetRate(ctx, fromCurrency, toCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.client.Set(ctx, key, rate.String(), c.ttl).Err(); err != nil {
		logger.Warn("Failed to cache rate", slog.String("key", key), slog.String("error", err.Error()))
	}
	return rate, nil
}

func (c *CachedRateProvider) ListRates(ctx context.Context, baseCurrency string) (map[string]decimal.Decimal, error) {
	logger := middleware.GetLoggerFromCtx(ctx)
	key := tableKey(baseCurrency)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rates map[string]decimal.Decimal
		if jerr := json.Unmarshal(cached, &rates); jerr == nil {
			return rates, nil
		}
		logger.Warn("Discarding malformed cached rate table", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		logger.Warn("Rate cache unavailable", slog.String("error", err.Error()))
	}

	rates, err := c.source.ListRates(ctx, baseCurrency)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(rates)
	if err == nil {
		err = c.client.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		logger.Warn("Failed to cache rate table", slog.String("key", key), slog.String("error", err.Error()))
	}
	return rates, nil
}
