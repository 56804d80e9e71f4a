package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// Sign computes the hex HMAC-SHA512 of body under secret, the scheme the
// provider signs webhook deliveries with.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha512.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature header against the raw body in
// constant time. The raw bytes must be compared as delivered, re-encoding
// the JSON first breaks the signature.
func VerifySignature(secret, body []byte, signature string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
