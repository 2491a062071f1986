package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	"github.com/Elmahrosa/Teos-Bankchain/shared/utils/cache"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateProvider supplies conversion rates. Live sourcing sits behind this
// interface; the core never fetches rates itself.
type RateProvider interface {
	GetRate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// StaticRateProvider serves a configured table of rates into one base currency.
type StaticRateProvider struct {
	base  string
	rates map[string]decimal.Decimal
}

func NewStaticRateProvider(base string, ratesToBase map[string]decimal.Decimal) *StaticRateProvider {
	rates := make(map[string]decimal.Decimal, len(ratesToBase)+1)
	for code, r := range ratesToBase {
		rates[strings.ToUpper(code)] = r
	}
	rates[strings.ToUpper(base)] = decimal.NewFromInt(1)
	return &StaticRateProvider{base: strings.ToUpper(base), rates: rates}
}

func (p *StaticRateProvider) GetRate(_ context.Context, from, to string) (decimal.Decimal, error) {
	fromRate, ok := p.rates[strings.ToUpper(from)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", from, xerrors.ErrUnsupportedCurrency)
	}
	toRate, ok := p.rates[strings.ToUpper(to)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%s: %w", to, xerrors.ErrUnsupportedCurrency)
	}
	if strings.EqualFold(to, p.base) {
		return fromRate, nil
	}
	// cross rate via base
	return fromRate.Div(toRate), nil
}

const rateNamespace = "fx:rate"

// CachedRateProvider keeps looked-up rates in redis in front of another provider.
type CachedRateProvider struct {
	next   RateProvider
	cache  *cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedRateProvider(next RateProvider, c *cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedRateProvider {
	return &CachedRateProvider{next: next, cache: c, ttl: ttl, logger: logger}
}

func (p *CachedRateProvider) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	key := strings.ToUpper(from) + ":" + strings.ToUpper(to)

	if val, err := p.cache.Get(ctx, rateNamespace, key); err == nil {
		if rate, parseErr := decimal.NewFromString(val); parseErr == nil {
			return rate, nil
		}
	}

	rate, err := p.next.GetRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}

	if err := p.cache.Set(ctx, rateNamespace, key, rate.String(), p.ttl); err != nil {
		p.logger.Warn("failed to cache fx rate", zap.String("key", key), zap.Error(err))
	}
	return rate, nil
}

// CurrencyNormalizer converts amounts into the reference currency.
type CurrencyNormalizer struct {
	reference  string
	currencies map[string]*domain.Currency
	rates      RateProvider
}

func NewCurrencyNormalizer(reference string, currencies map[string]*domain.Currency, rates RateProvider) *CurrencyNormalizer {
	return &CurrencyNormalizer{
		reference:  strings.ToUpper(reference),
		currencies: currencies,
		rates:      rates,
	}
}

func (n *CurrencyNormalizer) ReferenceCurrency() string {
	return n.reference
}

// Currency returns the metadata of a supported currency.
func (n *CurrencyNormalizer) Currency(code string) (*domain.Currency, error) {
	c, ok := n.currencies[strings.ToUpper(code)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", code, xerrors.ErrUnsupportedCurrency)
	}
	return c, nil
}

func (n *CurrencyNormalizer) ToReference(ctx context.Context, amount decimal.Decimal, from string) (decimal.Decimal, error) {
	if _, err := n.Currency(from); err != nil {
		return decimal.Zero, err
	}
	if strings.EqualFold(from, n.reference) {
		return amount, nil
	}

	rate, err := n.rates.GetRate(ctx, strings.ToUpper(from), n.reference)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}
