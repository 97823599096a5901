// Package crypto provides wallet key management for the DEX venue and HMAC
// request signing for the CEX REST API.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for HMAC-signed requests against the CEX
// REST API.
type HMACAuth struct {
	Key    string // API key
	Secret string // API secret
}

// SignQuery appends a timestamp parameter to the query string and returns
// the query with its HMAC-SHA256 signature attached, plus the header map the
// request must carry.
func (h *HMACAuth) SignQuery(query string) (signedQuery string, headers map[string]string) {
	return h.SignQueryAt(query, time.Now().UnixMilli())
}

// SignQueryAt is like SignQuery but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) SignQueryAt(query string, tsMillis int64) (string, map[string]string) {
	ts := strconv.FormatInt(tsMillis, 10)
	if query != "" {
		query += "&"
	}
	query += "timestamp=" + ts

	sig := hmacSHA256Hex([]byte(h.Secret), query)
	query += "&signature=" + sig

	return query, map[string]string{
		"X-API-KEY": h.Key,
	}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key and returns the
// result hex-encoded.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
