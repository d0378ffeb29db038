package tracker

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Tracker-Signature"

var (
	ErrSecretUnconfigured = errors.New("webhook secret not configured")
	ErrSignatureMissing   = errors.New("webhook signature missing")
	ErrSignatureMismatch  = errors.New("webhook signature mismatch")
)

// Sign returns the signature value a sender would put in SignatureHeader.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the HMAC over the unparsed body and compares it
// to signature in constant time.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return ErrSecretUnconfigured
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return ErrSignatureMissing
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return fmt.Errorf("%w: invalid hex", ErrSignatureMismatch)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), provided) != 1 {
		return ErrSignatureMismatch
	}
	return nil
}
