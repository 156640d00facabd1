package auth

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeydtaylor/steeze-connect/pkg/xsenv"
)

// ProvideAuthentication wires defaults from env and the xsuaa binding.
// The key set is fetched later by Run.
func ProvideAuthentication() (*Middleware, error) {
	hc := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: false,
		},
		Timeout: 8 * time.Second,
	}

	leeway := 60 * time.Second
	if v := strings.TrimSpace(os.Getenv("AUTH_LEEWAY_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			leeway = time.Duration(n) * time.Second
		}
	}

	cfg := Config{
		JWKSURL:    strings.TrimSpace(os.Getenv("AUTH_JWKS_URL")),
		Issuer:     strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
		Audience:   strings.TrimSpace(os.Getenv("AUTH_AUDIENCE")),
		AppName:    strings.TrimSpace(os.Getenv("AUTH_XSAPPNAME")),
		CookieName: strings.TrimSpace(os.Getenv("AUTH_COOKIE_NAME")),
		AdminScope: os.Getenv("AUTH_ADMIN_SCOPE"),
		DevBypass:  os.Getenv("AUTH_DEV_BYPASS") == "true",
		Leeway:     leeway,
		HTTPClient: hc,
	}

	// Fill the gaps from the xsuaa binding when the app runs bound.
	if svcs, err := xsenv.FromEnv(); err == nil {
		if uaa, err := svcs.ByTag(xsenv.TagXSUAA); err == nil {
			if cfg.JWKSURL == "" && uaa.URL != "" {
				cfg.JWKSURL = strings.TrimRight(uaa.URL, "/") + "/token_keys"
			}
			if cfg.AppName == "" {
				cfg.AppName = uaa.XSAppName
			}
			cfg.VerificationKey = uaa.VerificationKey
		}
	}

	return New(cfg)
}
