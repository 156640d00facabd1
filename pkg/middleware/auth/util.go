package auth

import (
	"encoding/base64"
	"net/http"
)

// HTTPDoer fetches the token keys; *http.Client satisfies it.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// first returns the first non-empty string.
func first(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// b64url decodes the unpadded base64url fields of a JWK.
func b64url(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// jwkExponent reads a big-endian RSA exponent. Zero falls back to 65537.
func jwkExponent(b []byte) int {
	e := 0
	for _, v := range b {
		e = e<<8 | int(v)
	}
	if e == 0 {
		return 65537
	}
	return e
}
