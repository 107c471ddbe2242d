package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"testing"
)

func TestSignMD5(t *testing.T) {
	base := "T1-U1-15000-100-IDR-secret"
	got, err := Sign(base, "", HashMD5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sum := md5.Sum([]byte(base))
	if got != hex.EncodeToString(sum[:]) {
		t.Fatalf("unexpected md5 digest: %s", got)
	}
}

func TestSignSHA1(t *testing.T) {
	got, err := Sign("abc", "", HashSHA1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a9993e364706816aba3e25717850c26c9cd0d89d" {
		t.Fatalf("unexpected sha1 digest: %s", got)
	}
}

func TestSignHMACSHA1Base64URL(t *testing.T) {
	got, err := Sign("https://api.example.com/callback?a=1", "key", HashHMACSHA1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mac := hmac.New(sha1.New, []byte("key"))
	mac.Write([]byte("https://api.example.com/callback?a=1"))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if !VerifyBase64URL(got, got+"=") {
		t.Fatal("expected padded value to verify")
	}
}

func TestVerifySignatureCaseInsensitive(t *testing.T) {
	if !VerifySignature("ABCDEF", " abcdef ") {
		t.Fatal("expected case-insensitive match")
	}
	if VerifySignature("abcdef", "") {
		t.Fatal("empty signature must not verify")
	}
	if VerifySignature("abcdef", "abcdee") {
		t.Fatal("different digest must not verify")
	}
}

func TestVerifyTokenRejectsEmpty(t *testing.T) {
	if VerifyToken("", "") {
		t.Fatal("empty secret must not verify")
	}
	if !VerifyToken("s3cret", "s3cret") {
		t.Fatal("expected equal tokens to verify")
	}
}
