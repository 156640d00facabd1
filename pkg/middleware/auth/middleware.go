package auth

import (
	"crypto/rsa"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config describes how inbound user tokens are verified.
type Config struct {
	// JWKSURL is the identity service's token_keys endpoint.
	JWKSURL string
	// VerificationKey is a PEM public key used until the JWKS is fetched.
	VerificationKey string
	Issuer          string
	Audience        string
	// AppName is the xsappname; scopes are reported without its prefix.
	AppName    string
	CookieName string
	AdminScope string
	DevBypass  bool
	Leeway     time.Duration
	HTTPClient HTTPDoer
}

type Middleware struct {
	httpClient HTTPDoer
	cookieName string
	adminRole  string
	devBypass  bool

	keyURL   string
	issuer   string
	audience string
	appName  string
	leeway   time.Duration

	// guarded by mu
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	staticKey *rsa.PublicKey
	etag      string
	cacheTTL  time.Duration
	lastFetch time.Time
}

// New builds a Middleware without touching the network.
func New(cfg Config) (*Middleware, error) {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 8 * time.Second}
	}
	m := &Middleware{
		httpClient: hc,
		cookieName: cfg.CookieName,
		adminRole:  cfg.AdminScope,
		devBypass:  cfg.DevBypass,
		keyURL:     strings.TrimSpace(cfg.JWKSURL),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		appName:    cfg.AppName,
		leeway:     cfg.Leeway,
		keys:       map[string]*rsa.PublicKey{},
		cacheTTL:   1 * time.Hour, // default; overridable by Cache-Control
	}
	if pemKey := strings.TrimSpace(cfg.VerificationKey); pemKey != "" {
		k, err := parsePEM([]byte(pemKey))
		if err != nil {
			return nil, err
		}
		m.staticKey = k
	}
	return m, nil
}
