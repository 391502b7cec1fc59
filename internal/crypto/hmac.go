package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// RequestAuth holds the shared secret for HMAC-authenticated requests to
// the external validation webhook.
type RequestAuth struct {
	Secret string
}

// Headers returns the HTTP headers for an authenticated webhook request.
// The signature is HMAC-SHA256(secret, timestamp+method+path+body)
// encoded as base64.
//
// Returned header keys:
//   - X-Attest-Timestamp
//   - X-Attest-Signature
func (a *RequestAuth) Headers(method, path, body string) map[string]string {
	return a.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (a *RequestAuth) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(a.Secret), message)

	return map[string]string{
		"X-Attest-Timestamp": ts,
		"X-Attest-Signature": sig,
	}
}

// String returns a redacted representation suitable for logging.
func (a *RequestAuth) String() string {
	if len(a.Secret) <= 4 {
		return "RequestAuth{secret=****}"
	}
	return fmt.Sprintf("RequestAuth{secret=%s****}", a.Secret[:4])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns
// the result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
