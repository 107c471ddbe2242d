package postback

import (
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pointly/pointly-api/internal/config"
	"github.com/pointly/pointly-api/internal/pkg/signature"
)

// AuthScheme is how a provider proves a postback came from it.
type AuthScheme string

const (
	AuthNone    AuthScheme = "none"
	AuthToken   AuthScheme = "shared_token" // secret echoed back in a parameter
	AuthDigest  AuthScheme = "digest"       // hash over selected fields plus secret
	AuthURLHMAC AuthScheme = "url_hmac"     // HMAC-SHA1 over the full callback URL
)

// Enforcement decides what a failed authenticity check does.
type Enforcement string

const (
	EnforceStrict  Enforcement = "strict"
	EnforceLogOnly Enforcement = "log_only"
)

func parseEnforcement(raw string) Enforcement {
	if Enforcement(strings.ToLower(strings.TrimSpace(raw))) == EnforceLogOnly {
		return EnforceLogOnly
	}
	return EnforceStrict
}

// AmountSource describes one parameter that may carry the payout.
type AmountSource struct {
	Field         string
	CurrencyField string // optional parameter naming the currency
	Currency      string // used when CurrencyField is absent or empty
	InCents       bool
	Divisor       int64 // provider units per currency unit, 0 means 1
}

// Ack is the provider's expected response body.
type Ack struct {
	Success string
	Invalid string
}

// Provider is the per-network configuration record consumed by the engine.
type Provider struct {
	Name     string
	TaskType string

	UserFields        []string
	TxnFields         []string
	CorrelationFields []string // original transaction id on chargebacks, if sent
	AmountSources     []AmountSource
	FixedPoints       int64 // flat point total per task; the amount then only signals reversals

	StatusField      string
	ChargebackValues []string

	Auth            AuthScheme
	HashAlgo        signature.HashAlgorithm
	DigestFields    []string
	DigestSeparator string
	SignatureFields []string
	Secret          string
	Enforcement     Enforcement
	AllowedIPs      *IPAllowlist

	Ack         Ack
	Aliases     []string // extra names accepted on /callback/{provider}
	LegacyPaths []string
}

var defaultChargebackValues = []string{"2", "reversed", "chargeback", "rejected", "-1"}

var ackOK = Ack{Success: "OK", Invalid: "OK"}
var ackOne = Ack{Success: "1", Invalid: "1"}

// DefaultProviders builds the provider table, merging operator settings
// (secrets, enforcement, allowlists) from cfg.
func DefaultProviders(cfg config.PostbackConfig) []*Provider {
	usd := func(field string) AmountSource {
		return AmountSource{Field: field, Currency: "USD"}
	}

	providers := []*Provider{
		{
			Name:            "generic",
			TaskType:        "ad",
			UserFields:      []string{"subid", "user_id"},
			TxnFields:       []string{"transaction_id"},
			AmountSources:   []AmountSource{{Field: "amount", CurrencyField: "currency", Currency: "USD"}},
			StatusField:     "status",
			Auth:            AuthToken,
			SignatureFields: []string{"secret", "key"},
			Ack:             ackOK,
		},
		{
			Name:            "monetag",
			TaskType:        "ad",
			UserFields:      []string{"subid", "user_id"},
			TxnFields:       []string{"transaction_id"},
			AmountSources:   []AmountSource{{Field: "amount", CurrencyField: "currency", Currency: "USD"}},
			StatusField:     "status",
			Auth:            AuthToken,
			SignatureFields: []string{"secret", "key"},
			Ack:             ackOK,
			LegacyPaths:     []string{"/api/monetag/postback"},
		},
		{
			Name:              "cpx",
			TaskType:          "survey",
			UserFields:        []string{"user_id"},
			TxnFields:         []string{"trans_id"},
			CorrelationFields: []string{"original_trans_id"},
			AmountSources: []AmountSource{
				{Field: "amount_local", CurrencyField: "currency_type", Currency: "IDR"},
				usd("amount_usd"),
			},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashMD5,
			DigestFields:    []string{"trans_id", "user_id", "amount_local", "amount_usd", "currency_type"},
			DigestSeparator: "-",
			SignatureFields: []string{"hash", "secure_hash"},
			Ack:             ackOK,
			Aliases:         []string{"cpx-research"},
			LegacyPaths:     []string{"/api/cpx/postback"},
		},
		{
			Name:            "bitlabs",
			TaskType:        "survey",
			UserFields:      []string{"user_id", "uid"},
			TxnFields:       []string{"tx"},
			AmountSources:   []AmountSource{usd("value")},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashSHA1,
			DigestFields:    []string{"user_id", "tx", "value"},
			SignatureFields: []string{"hash"},
			Ack:             ackOK,
			LegacyPaths:     []string{"/api/bitlabs/callback"},
		},
		{
			Name:          "timewall",
			TaskType:      "offer",
			UserFields:    []string{"user_id", "userID"},
			TxnFields:     []string{"offer_id", "transactionID"},
			AmountSources: []AmountSource{usd("payout")},
			StatusField:   "status",
			Auth:          AuthNone,
			Ack:           ackOK,
			LegacyPaths:   []string{"/api/timewall/postback"},
		},
		{
			Name:          "lootably",
			TaskType:      "offer",
			UserFields:    []string{"user_id"},
			TxnFields:     []string{"transaction_id"},
			AmountSources: []AmountSource{usd("payout")},
			StatusField:   "status",
			Auth:          AuthNone,
			Ack:           ackOK,
			LegacyPaths:   []string{"/api/lootably/postback"},
		},
		{
			Name:            "revlum",
			TaskType:        "offer",
			UserFields:      []string{"user_id"},
			TxnFields:       []string{"transaction_id"},
			AmountSources:   []AmountSource{usd("amount")},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashMD5,
			DigestFields:    []string{"user_id", "transaction_id", "amount"},
			SignatureFields: []string{"signature", "hash"},
			Ack:             ackOK,
			LegacyPaths:     []string{"/api/revlum/postback"},
		},
		{
			Name:            "wannads",
			TaskType:        "offer",
			UserFields:      []string{"user_id", "subId"},
			TxnFields:       []string{"transaction_id", "transId"},
			AmountSources:   []AmountSource{usd("reward"), usd("payout")},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashMD5,
			DigestFields:    []string{"user_id", "transaction_id", "reward"},
			SignatureFields: []string{"signature", "hash"},
			Ack:             ackOK,
			LegacyPaths:     []string{"/api/wannads/postback"},
		},
		{
			Name:       "kiwiwall",
			TaskType:   "offer",
			UserFields: []string{"sub_id"},
			TxnFields:  []string{"trans_id"},
			AmountSources: []AmountSource{
				{Field: "amount", Currency: "USD", Divisor: 1000},
				{Field: "gross", Currency: "USD", Divisor: 1000},
			},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashMD5,
			DigestFields:    []string{"trans_id", "sub_id", "amount"},
			SignatureFields: []string{"signature"},
			Ack:             Ack{Success: "1", Invalid: "0"},
			LegacyPaths:     []string{"/api/kiwiwall/postback"},
		},
		{
			Name:            "adgem",
			TaskType:        "offer",
			UserFields:      []string{"user_id", "player_id"},
			TxnFields:       []string{"transaction_id"},
			AmountSources:   []AmountSource{{Field: "amount", Currency: "USD", InCents: true}},
			StatusField:     "status",
			Auth:            AuthDigest,
			HashAlgo:        signature.HashMD5,
			DigestFields:    []string{"user_id", "amount", "transaction_id"},
			SignatureFields: []string{"hash", "verifier"},
			Ack:             ackOne,
			LegacyPaths:     []string{"/api/adgem/postback"},
		},
		{
			Name:             "theoremreach",
			TaskType:         "survey",
			UserFields:       []string{"user_id"},
			TxnFields:        []string{"tx_id"},
			AmountSources:    []AmountSource{usd("currency"), usd("reward")},
			StatusField:      "reversal",
			ChargebackValues: []string{"true", "1"},
			Auth:             AuthURLHMAC,
			HashAlgo:         signature.HashHMACSHA1,
			SignatureFields:  []string{"hash"},
			Ack:              ackOne,
			LegacyPaths:      []string{"/api/theoremreach/callback"},
		},
	}

	for _, p := range providers {
		pc := cfg.Providers[p.Name]
		p.Secret = pc.Secret
		p.Enforcement = parseEnforcement(pc.Enforcement)
		if pc.FixedPoints > 0 {
			p.FixedPoints = pc.FixedPoints
		}

		allow, err := NewIPAllowlist(pc.AllowedIPs)
		if err != nil {
			log.Error().Err(err).Str("provider", p.Name).Msg("invalid postback IP allowlist, ignoring")
			allow = &IPAllowlist{}
		}
		p.AllowedIPs = allow

		if p.ChargebackValues == nil {
			p.ChargebackValues = defaultChargebackValues
		}
		if p.Auth == AuthToken && p.Secret == "" {
			// No shared secret configured: the integration runs unauthenticated.
			p.Auth = AuthNone
		}
	}

	return providers
}

// IsChargeback maps the provider's status value to a chargeback flag.
func (p *Provider) IsChargeback(params Params) bool {
	if p.StatusField == "" {
		return false
	}
	status := strings.ToLower(strings.TrimSpace(params.Get(p.StatusField)))
	if status == "" {
		return false
	}
	for _, v := range p.ChargebackValues {
		if status == v {
			return true
		}
	}
	return false
}
