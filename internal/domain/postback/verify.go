package postback

import (
	"fmt"
	"strings"

	"github.com/pointly/pointly-api/internal/pkg/signature"
)

// Verify checks the authenticity of an inbound postback according to the
// provider's scheme. It does not apply the enforcement mode.
func (p *Provider) Verify(in Inbound) error {
	switch p.Auth {
	case AuthNone, "":
		return nil
	case AuthToken:
		_, got := in.Params.First(p.SignatureFields...)
		if got == "" {
			return ErrSignatureMissing
		}
		if !signature.VerifyToken(p.Secret, got) {
			return ErrSignatureMismatch
		}
		return nil
	case AuthDigest:
		if p.Secret == "" {
			return ErrSecretNotConfigured
		}
		_, got := in.Params.First(p.SignatureFields...)
		if got == "" {
			return ErrSignatureMissing
		}
		expected, err := signature.Sign(p.DigestBase(in.Params), "", p.HashAlgo)
		if err != nil {
			return err
		}
		if !signature.VerifySignature(expected, got) {
			return ErrSignatureMismatch
		}
		return nil
	case AuthURLHMAC:
		if p.Secret == "" {
			return ErrSecretNotConfigured
		}
		_, got := in.Params.First(p.SignatureFields...)
		if got == "" {
			return ErrSignatureMissing
		}
		expected, err := signature.Sign(in.CallbackURL, p.Secret, signature.HashHMACSHA1)
		if err != nil {
			return err
		}
		if !signature.VerifyBase64URL(expected, got) {
			return ErrSignatureMismatch
		}
		return nil
	default:
		return fmt.Errorf("unsupported auth scheme: %s", p.Auth)
	}
}

// DigestBase joins the digest fields and the secret with the provider's
// separator, using raw parameter values as received.
func (p *Provider) DigestBase(params Params) string {
	parts := make([]string, 0, len(p.DigestFields)+1)
	for _, f := range p.DigestFields {
		parts = append(parts, params.Get(f))
	}
	parts = append(parts, p.Secret)
	return strings.Join(parts, p.DigestSeparator)
}
