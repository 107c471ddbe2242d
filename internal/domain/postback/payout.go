package postback

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/pointly/pointly-api/internal/pkg/revshare"
)

const fixedPointsField = "fixed_points"

// Payout is the provider amount resolved to a revenue split.
type Payout struct {
	Field    string
	Share    revshare.Share
	Negative bool
}

// Payout reads the first configured amount parameter present and splits it.
// A negative amount is reported via Negative and split on its magnitude.
// Flat-rate providers split FixedPoints instead.
func (p *Provider) Payout(params Params) (*Payout, error) {
	if p.FixedPoints > 0 {
		return p.fixedPayout(params)
	}
	for _, src := range p.AmountSources {
		raw := params.Get(src.Field)
		if raw == "" {
			continue
		}

		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidAmount, src.Field, raw)
		}
		negative := amount.IsNegative()
		amount = amount.Abs()
		if src.Divisor > 1 {
			amount = amount.Div(decimal.NewFromInt(src.Divisor))
		}

		currency := src.Currency
		if src.CurrencyField != "" {
			if c := params.Get(src.CurrencyField); c != "" {
				currency = c
			}
		}

		share, err := revshare.Calculate(amount, currency, src.InCents)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q: %v", ErrInvalidAmount, src.Field, raw, err)
		}
		return &Payout{
			Field:    src.Field,
			Share:    share,
			Negative: negative,
		}, nil
	}
	return nil, ErrMissingAmount
}

// fixedPayout credits the configured flat point total. A reported amount is
// only consulted for its sign.
func (p *Provider) fixedPayout(params Params) (*Payout, error) {
	negative := false
	for _, src := range p.AmountSources {
		raw := params.Get(src.Field)
		if raw == "" {
			continue
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrInvalidAmount, src.Field, raw)
		}
		negative = amount.IsNegative()
		break
	}
	return &Payout{
		Field:    fixedPointsField,
		Share:    revshare.CalculateFixed(p.FixedPoints),
		Negative: negative,
	}, nil
}
