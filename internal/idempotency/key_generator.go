package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateKey builds a deterministic key using all provided parts.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

// RequestKey scopes a client-supplied Idempotency-Key to one player and route.
func RequestKey(username, route, clientKey string) string {
	return GenerateKey("request", username, route, clientKey)
}
