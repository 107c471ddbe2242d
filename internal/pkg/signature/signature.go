package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

type HashAlgorithm string

const (
	HashMD5      HashAlgorithm = "MD5"
	HashSHA1     HashAlgorithm = "SHA1"
	HashHMACSHA1 HashAlgorithm = "HMAC-SHA1"
)

// Sign digests base with the given algorithm. MD5 and SHA1 return lowercase
// hex; HMAC-SHA1 is keyed with secret and returns unpadded base64url.
func Sign(base, secret string, algo HashAlgorithm) (string, error) {
	switch algo {
	case HashMD5:
		h := md5.Sum([]byte(base))
		return hex.EncodeToString(h[:]), nil
	case HashSHA1:
		h := sha1.Sum([]byte(base))
		return hex.EncodeToString(h[:]), nil
	case HashHMACSHA1:
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write([]byte(base))
		return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// VerifySignature compares hex digests case-insensitively in constant time.
func VerifySignature(expectedHex, receivedHex string) bool {
	expected := strings.ToLower(strings.TrimSpace(expectedHex))
	received := strings.ToLower(strings.TrimSpace(receivedHex))
	if received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// VerifyBase64URL compares base64url digests exactly, tolerating trailing
// padding on the received value.
func VerifyBase64URL(expected, received string) bool {
	received = strings.TrimRight(strings.TrimSpace(received), "=")
	if received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

// VerifyToken compares a plain shared secret in constant time.
func VerifyToken(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
