package core

import (
	"context"
	"net/http"
	"time"

	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
)

// withTimeout bounds the whole destination chain (tokens, lookup, CSRF,
// backend call) by the route's timeout_ms. Zero leaves it unbounded.
func withTimeout(next http.HandlerFunc, p manifest.Policy) http.HandlerFunc {
	if p.TimeoutMS <= 0 {
		return next
	}
	d := time.Duration(p.TimeoutMS) * time.Millisecond
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}
