package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateAccessKey returns 2n uppercase hex characters for ticket access
// keys printed on QR codes.
func GenerateAccessKey(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
