// Package revshare converts provider payouts into points and splits them
// between the user and the platform.
package revshare

import (
	"errors"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrAmountTooLarge is returned when a payout converts to more points than
// the ledger can hold.
var ErrAmountTooLarge = errors.New("amount exceeds maximum point value")

var (
	maxPoints       = decimal.NewFromInt(math.MaxInt64)
	userPercent     = decimal.NewFromFloat(0.70)
	platformPercent = decimal.NewFromFloat(0.30)
	hundred         = decimal.NewFromInt(100)
)

// Points per one unit of currency.
var rates = map[string]int64{
	"IDR": 1,
	"USD": 15000,
	"EUR": 16500,
	"GBP": 19000,
}

// Currencies whose provider amounts may be reported in minor units.
var centCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
}

const fallbackCurrency = "USD"

// Share is the result of a revenue split.
type Share struct {
	UserShare      int64           `json:"user_share"`
	PlatformShare  int64           `json:"platform_share"`
	TotalPoints    int64           `json:"total_points"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Currency       string          `json:"currency"`
	Rate           int64           `json:"rate"`
}

// Calculate converts amount into points and splits them 70/30.
// isInCents is honoured only for USD, EUR and GBP.
func Calculate(amount decimal.Decimal, currency string, isInCents bool) (Share, error) {
	currency = NormalizeCurrency(currency)
	rate := rates[currency]

	base := amount
	if isInCents && centCurrencies[currency] {
		base = base.Div(hundred)
	}

	points := base.Mul(decimal.NewFromInt(rate)).Floor()
	if points.Abs().GreaterThan(maxPoints) {
		return Share{}, ErrAmountTooLarge
	}
	share := split(points.IntPart())
	share.OriginalAmount = amount
	share.Currency = currency
	share.Rate = rate
	return share, nil
}

// CalculateFixed splits a known point total without currency conversion.
func CalculateFixed(points int64) Share {
	share := split(points)
	share.OriginalAmount = decimal.NewFromInt(points)
	share.Rate = 1
	return share
}

// NormalizeCurrency upper-cases the code and maps unknown codes to USD.
func NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := rates[currency]; !ok {
		return fallbackCurrency
	}
	return currency
}

// split never yields a user share below one point, so user+platform may
// exceed total for tiny payouts.
func split(total int64) Share {
	t := decimal.NewFromInt(total)
	platform := t.Mul(platformPercent).Floor().IntPart()
	user := t.Mul(userPercent).Floor().IntPart()
	if user < 1 {
		user = 1
	}
	return Share{
		UserShare:     user,
		PlatformShare: platform,
		TotalPoints:   total,
	}
}
