package postback

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/pointly/pointly-api/internal/config"
)

func TestDefaultProvidersApplyConfig(t *testing.T) {
	providers := testProviders(map[string]config.ProviderConfig{
		"bitlabs": {Secret: "b", Enforcement: "LOG_ONLY"},
		"revlum":  {AllowedIPs: []string{"bogus"}},
	})

	if len(providers) != len(config.PostbackProviders) {
		t.Fatalf("expected %d providers, got %d", len(config.PostbackProviders), len(providers))
	}
	for _, name := range config.PostbackProviders {
		if providers[name] == nil {
			t.Fatalf("provider %s not configured", name)
		}
	}
	if providers["bitlabs"].Enforcement != EnforceLogOnly {
		t.Fatalf("expected log_only, got %s", providers["bitlabs"].Enforcement)
	}
	if providers["cpx"].Enforcement != EnforceStrict {
		t.Fatalf("expected strict default, got %s", providers["cpx"].Enforcement)
	}
	if providers["monetag"].Auth != AuthNone {
		t.Fatalf("token auth without secret should degrade to none, got %s", providers["monetag"].Auth)
	}
	if providers["generic"].Auth != AuthToken {
		t.Fatalf("expected token auth with secret, got %s", providers["generic"].Auth)
	}
	if !providers["revlum"].AllowedIPs.Empty() {
		t.Fatal("invalid allowlist should be ignored")
	}
}

func TestIsChargeback(t *testing.T) {
	providers := testProviders(nil)

	tests := []struct {
		provider string
		params   Params
		want     bool
	}{
		{provider: "generic", params: Params{"status": "1"}, want: false},
		{provider: "generic", params: Params{"status": "2"}, want: true},
		{provider: "generic", params: Params{"status": " Reversed "}, want: true},
		{provider: "generic", params: Params{}, want: false},
		{provider: "theoremreach", params: Params{"reversal": "true"}, want: true},
		{provider: "theoremreach", params: Params{"reversal": "false"}, want: false},
	}
	for _, tt := range tests {
		if got := providers[tt.provider].IsChargeback(tt.params); got != tt.want {
			t.Fatalf("%s %v: got %v, want %v", tt.provider, tt.params, got, tt.want)
		}
	}
}

func TestPayout(t *testing.T) {
	providers := testProviders(nil)

	tests := []struct {
		name     string
		provider string
		params   Params
		user     int64
		currency string
		negative bool
	}{
		{name: "cpx prefers local amount", provider: "cpx", params: Params{"amount_local": "15000", "currency_type": "idr", "amount_usd": "1"}, user: 10500, currency: "IDR"},
		{name: "cpx falls back to usd", provider: "cpx", params: Params{"amount_usd": "1"}, user: 10500, currency: "USD"},
		{name: "adgem cents", provider: "adgem", params: Params{"amount": "100"}, user: 10500, currency: "USD"},
		{name: "kiwiwall divisor", provider: "kiwiwall", params: Params{"amount": "1000"}, user: 10500, currency: "USD"},
		{name: "unknown currency", provider: "generic", params: Params{"amount": "1", "currency": "XYZ"}, user: 10500, currency: "USD"},
		{name: "negative", provider: "generic", params: Params{"amount": "-1"}, user: 10500, currency: "USD", negative: true},
		{name: "dust still pays one point", provider: "generic", params: Params{"amount": "0.00001"}, user: 1, currency: "USD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payout, err := providers[tt.provider].Payout(tt.params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payout.Share.UserShare != tt.user {
				t.Fatalf("expected user share %d, got %d", tt.user, payout.Share.UserShare)
			}
			if payout.Share.Currency != tt.currency {
				t.Fatalf("expected currency %s, got %s", tt.currency, payout.Share.Currency)
			}
			if payout.Negative != tt.negative {
				t.Fatalf("expected negative=%v", tt.negative)
			}
		})
	}

	if _, err := providers["generic"].Payout(Params{}); !errors.Is(err, ErrMissingAmount) {
		t.Fatalf("expected ErrMissingAmount, got %v", err)
	}
	if _, err := providers["generic"].Payout(Params{"amount": "1,5"}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestPayoutRejectsOverflowingAmounts(t *testing.T) {
	providers := testProviders(nil)

	for _, amount := range []string{"700000000000000", "1234567890123456", "-700000000000000"} {
		if _, err := providers["timewall"].Payout(Params{"payout": amount}); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("payout=%s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestPayoutFixedPoints(t *testing.T) {
	p := testProviders(map[string]config.ProviderConfig{
		"monetag": {FixedPoints: 200},
	})["monetag"]

	tests := []struct {
		name     string
		params   Params
		negative bool
		wantErr  bool
	}{
		{name: "amount absent", params: Params{}},
		{name: "amount ignored", params: Params{"amount": "99"}},
		{name: "negative amount marks reversal", params: Params{"amount": "-99"}, negative: true},
		{name: "garbage amount", params: Params{"amount": "abc"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payout, err := p.Payout(tt.params)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payout.Share.TotalPoints != 200 || payout.Share.UserShare != 140 || payout.Share.PlatformShare != 60 {
				t.Fatalf("unexpected fixed share: %+v", payout.Share)
			}
			if payout.Field != fixedPointsField || payout.Negative != tt.negative {
				t.Fatalf("unexpected payout: %+v", payout)
			}
		})
	}
}

func md5Hex(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func sha1Hex(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestVerifyProviderDigestFormulas(t *testing.T) {
	providers := testProviders(map[string]config.ProviderConfig{
		"bitlabs": {Secret: "BL"},
		"revlum":  {Secret: "RV"},
		"wannads": {Secret: "WN"},
		"adgem":   {Secret: "AG"},
	})

	tests := []struct {
		provider string
		params   Params
		sigField string
		sig      string
		tamper   string
	}{
		{
			provider: "bitlabs",
			params:   Params{"user_id": "U1", "tx": "B-1", "value": "0.75"},
			sigField: "hash",
			sig:      sha1Hex("U1" + "B-1" + "0.75" + "BL"),
			tamper:   "value",
		},
		{
			provider: "revlum",
			params:   Params{"user_id": "U1", "transaction_id": "R-1", "amount": "1.20"},
			sigField: "signature",
			sig:      md5Hex("U1" + "R-1" + "1.20" + "RV"),
			tamper:   "amount",
		},
		{
			provider: "wannads",
			params:   Params{"user_id": "U1", "transaction_id": "W-1", "reward": "3"},
			sigField: "signature",
			sig:      md5Hex("U1" + "W-1" + "3" + "WN"),
			tamper:   "reward",
		},
		{
			provider: "adgem",
			params:   Params{"user_id": "U1", "amount": "150", "transaction_id": "A-1"},
			sigField: "hash",
			sig:      md5Hex("U1" + "150" + "A-1" + "AG"),
			tamper:   "amount",
		},
		{
			provider: "kiwiwall",
			params:   Params{"trans_id": "K-1", "sub_id": "U1", "amount": "500"},
			sigField: "signature",
			sig:      md5Hex("K-1" + "U1" + "500" + "KIWI"),
			tamper:   "amount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p := providers[tt.provider]

			params := Params{tt.sigField: tt.sig}
			for k, v := range tt.params {
				params[k] = v
			}
			if err := p.Verify(Inbound{Params: params}); err != nil {
				t.Fatalf("expected signature to verify, got %v", err)
			}

			params[tt.tamper] = params[tt.tamper] + "0"
			if err := p.Verify(Inbound{Params: params}); !errors.Is(err, ErrSignatureMismatch) {
				t.Fatalf("expected mismatch after changing %s, got %v", tt.tamper, err)
			}
		})
	}

	// AdGem signs the amount before the transaction id.
	swapped := Params{
		"user_id":        "U1",
		"amount":         "150",
		"transaction_id": "A-1",
		"hash":           md5Hex("U1" + "A-1" + "150" + "AG"),
	}
	if err := providers["adgem"].Verify(Inbound{Params: swapped}); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected field order to matter for adgem, got %v", err)
	}
}

func TestVerifyDigestBase(t *testing.T) {
	p := testProviders(nil)["cpx"]
	base := p.DigestBase(Params{
		"trans_id":      "T1",
		"user_id":       "U1",
		"amount_local":  "15000",
		"amount_usd":    "100",
		"currency_type": "IDR",
	})
	if base != "T1-U1-15000-100-IDR-SECRET" {
		t.Fatalf("unexpected digest base %q", base)
	}

	err := p.Verify(Inbound{Params: Params{"hash": "x"}})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := p.Verify(Inbound{Params: Params{}}); !errors.Is(err, ErrSignatureMissing) {
		t.Fatalf("expected missing signature, got %v", err)
	}
}
