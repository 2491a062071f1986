package domain

import (
	"github.com/shopspring/decimal"
)

const DefaultReferenceCurrency = "EGP"

type Currency struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// DefaultCurrencies returns the static list of supported currencies
func DefaultCurrencies() map[string]*Currency {
	return map[string]*Currency{
		"EGP": {Code: "EGP", Name: "Egyptian Pound", Decimals: 2},
		"USD": {Code: "USD", Name: "US Dollar", Decimals: 2},
		"SAR": {Code: "SAR", Name: "Saudi Riyal", Decimals: 2},
		"PI":  {Code: "PI", Name: "Pi", Decimals: 7},
	}
}

// DefaultRatesToEGP is the configured conversion table into EGP.
func DefaultRatesToEGP() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"EGP": decimal.NewFromInt(1),
		"USD": decimal.RequireFromString("30.9"),
		"SAR": decimal.RequireFromString("8.23"),
		"PI":  decimal.NewFromInt(1545),
	}
}

// RoundMinor rounds half-up to the currency's minor unit. It is applied only
// when an amount is written to the ledger.
func RoundMinor(amount decimal.Decimal, decimals int32) decimal.Decimal {
	return amount.Round(decimals)
}
