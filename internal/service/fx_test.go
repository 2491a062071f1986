package service

import (
	"context"
	"testing"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	xerrors "github.com/Elmahrosa/Teos-Bankchain/shared/utils/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNormalizer() *CurrencyNormalizer {
	return NewCurrencyNormalizer("EGP", domain.DefaultCurrencies(),
		NewStaticRateProvider("EGP", domain.DefaultRatesToEGP()))
}

func TestToReference(t *testing.T) {
	n := newNormalizer()
	ctx := context.Background()

	tests := []struct {
		amount, currency, want string
	}{
		{"1500", "EGP", "1500"},
		{"100", "usd", "3090"},
		{"1000", "SAR", "8230"},
		{"0.5", "PI", "772.5"},
		{"0.0000001", "PI", "0.0001545"},
	}
	for _, tt := range tests {
		t.Run(tt.currency+" "+tt.amount, func(t *testing.T) {
			got, err := n.ToReference(ctx, decimal.RequireFromString(tt.amount), tt.currency)
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	_, err := n.ToReference(ctx, decimal.NewFromInt(1), "GBP")
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedCurrency)
	assert.Equal(t, "EGP", n.ReferenceCurrency())
}

func TestStaticRateProvider_CrossRate(t *testing.T) {
	p := NewStaticRateProvider("EGP", domain.DefaultRatesToEGP())
	ctx := context.Background()

	rate, err := p.GetRate(ctx, "EGP", "EGP")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(1)))

	rate, err = p.GetRate(ctx, "PI", "USD")
	require.NoError(t, err)
	assert.True(t, rate.Mul(decimal.RequireFromString("30.9")).Round(8).Equal(decimal.NewFromInt(1545)), "got %s", rate)

	_, err = p.GetRate(ctx, "EGP", "JPY")
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedCurrency)
}

func TestCurrencyNormalizer_MissingRate(t *testing.T) {
	currencies := domain.DefaultCurrencies()
	currencies["EUR"] = &domain.Currency{Code: "EUR", Decimals: 2}
	n := NewCurrencyNormalizer("EGP", currencies, NewStaticRateProvider("EGP", domain.DefaultRatesToEGP()))

	_, err := n.ToReference(context.Background(), decimal.NewFromInt(1), "EUR")
	assert.ErrorIs(t, err, xerrors.ErrUnsupportedCurrency)
}
