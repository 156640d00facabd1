package auth

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// maxKeySetSize bounds reads of the token_keys response.
const maxKeySetSize = 1 << 20

// Run fetches the key set and keeps it fresh until ctx is done. A failed
// first fetch is not fatal; the verification key, if any, is used meanwhile.
func (m *Middleware) Run(ctx context.Context) {
	if m.keyURL == "" {
		return
	}
	_ = m.refreshKeys(ctx)
	for {
		sleep := m.getCacheTTL()
		if sleep < 5*time.Second {
			sleep = 5 * time.Second
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
		_ = m.refreshKeys(ctx)
	}
}

func (m *Middleware) refreshKeys(ctx context.Context) error {
	if m.keyURL == "" {
		return errors.New("AUTH_JWKS_URL not set")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.keyURL, nil)
	if err != nil {
		return err
	}
	if etag := m.getETag(); etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	req.Header.Set("Accept", "application/json")

	res, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	// Honor 304 with previous keys
	if res.StatusCode == http.StatusNotModified && m.hasKeys() {
		m.updateCacheTTLFromHeaders(res)
		m.setLastFetch(time.Now())
		return nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("key fetch %s: %s", m.keyURL, res.Status)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxKeySetSize))
	if err != nil {
		return err
	}

	var keys map[string]*rsa.PublicKey
	if ct := strings.ToLower(res.Header.Get("Content-Type")); strings.Contains(ct, "json") || gjson.ValidBytes(body) {
		if keys, err = parseJWKS(body); err != nil {
			return err
		}
	} else {
		k, err := parsePEM(body)
		if err != nil {
			return err
		}
		keys = map[string]*rsa.PublicKey{"": k}
	}

	// commit new state under lock
	m.mu.Lock()
	m.keys = keys
	m.etag = res.Header.Get("ETag")
	m.updateCacheTTLFromHeadersLocked(res) // expects m.mu held
	m.lastFetch = time.Now()
	m.mu.Unlock()
	return nil
}

// parseJWKS reads the RSA signing keys of a JWKS document. XSUAA publishes
// both the modulus/exponent pair and a PEM "value"; either is accepted.
func parseJWKS(body []byte) (map[string]*rsa.PublicKey, error) {
	keys := map[string]*rsa.PublicKey{}
	var firstErr error
	gjson.GetBytes(body, "keys").ForEach(func(_, k gjson.Result) bool {
		if k.Get("kty").String() != "RSA" {
			return true
		}
		if use := k.Get("use").String(); use != "" && use != "sig" {
			return true
		}
		if alg := k.Get("alg").String(); alg != "" && !strings.EqualFold(alg, "RS256") {
			return true
		}
		pub, err := jwkKey(k)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		keys[k.Get("kid").String()] = pub
		return true
	})
	if len(keys) == 0 {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, errors.New("no suitable RSA key in JWKS")
	}
	return keys, nil
}

func jwkKey(k gjson.Result) (*rsa.PublicKey, error) {
	if n, e := k.Get("n").String(), k.Get("e").String(); n != "" && e != "" {
		nBytes, err := b64url(n)
		if err != nil {
			return nil, fmt.Errorf("bad jwks.n: %w", err)
		}
		eBytes, err := b64url(e)
		if err != nil {
			return nil, fmt.Errorf("bad jwks.e: %w", err)
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: jwkExponent(eBytes)}, nil
	}
	if v := k.Get("value").String(); v != "" {
		return parsePEM([]byte(v))
	}
	return nil, errors.New("jwk has neither n/e nor value")
}

func parsePEM(b []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	keyAny, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rk, ok := keyAny.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("PEM is not RSA public key")
	}
	return rk, nil
}

// keyFor picks the key for kid. An unknown or empty kid falls back to the
// only fetched key, then to the static verification key.
func (m *Middleware) keyFor(kid string) (*rsa.PublicKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k, ok := m.keys[kid]; ok {
		return k, nil
	}
	if len(m.keys) == 1 {
		for _, k := range m.keys {
			return k, nil
		}
	}
	if m.staticKey != nil {
		return m.staticKey, nil
	}
	if len(m.keys) == 0 {
		return nil, errors.New("token key not available")
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

func (m *Middleware) updateCacheTTLFromHeaders(res *http.Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCacheTTLFromHeadersLocked(res)
}

func (m *Middleware) updateCacheTTLFromHeadersLocked(res *http.Response) {
	cc := res.Header.Get("Cache-Control")
	if cc == "" {
		return
	}
	parts := strings.Split(cc, ",")
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if strings.HasPrefix(p, "max-age=") {
			if s, err := strconv.Atoi(strings.TrimPrefix(p, "max-age=")); err == nil && s >= 5 {
				m.cacheTTL = time.Duration(s) * time.Second
				return
			}
		}
	}
}

func (m *Middleware) hasKeys() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys) > 0
}

func (m *Middleware) getETag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.etag
}

func (m *Middleware) getCacheTTL() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cacheTTL
}

func (m *Middleware) setLastFetch(t time.Time) {
	m.mu.Lock()
	m.lastFetch = t
	m.mu.Unlock()
}
