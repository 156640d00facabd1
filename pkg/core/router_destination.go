package core

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/joeydtaylor/steeze-connect/pkg/codec"
	"github.com/joeydtaylor/steeze-connect/pkg/connectivity"
	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
	httpx "github.com/joeydtaylor/steeze-connect/pkg/transport/httpx"
)

// hopHeaders are never copied from a backend response.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length",
}

// alwaysForwarded are copied from the inbound request whatever the policy says.
var alwaysForwarded = []string{"Content-Type", "Accept"}

func destinationHandler(rt manifest.Route, d BuildDeps) http.HandlerFunc {
	spec := rt.Handler.Destination
	direct := rt.Handler.Type == manifest.HandlerDestinationDirect
	log := routeLog(d, rt)
	opts := callOptions(spec)

	return func(w http.ResponseWriter, r *http.Request) {
		if d.Destinations == nil {
			http.Error(w, "destination client unavailable", http.StatusBadGateway)
			return
		}
		creds, err := issueCreds(d, r, rt)
		if err != nil {
			writeCredsError(w, err)
			return
		}

		req := connectivity.Request{
			Method: r.Method,
			URL:    upstreamPath(spec.Path, r),
			Header: forwardHeaders(r, rt.Policy.ForwardHdrs, creds.Extra),
			JSON:   spec.JSON,
		}
		if r.Body != nil && r.Body != http.NoBody && r.ContentLength != 0 {
			req.Body = r.Body
		}

		var resp *connectivity.Response
		if direct {
			resp, err = d.Destinations.DoDirect(r.Context(), req, creds.AuthToken, spec.Name, opts...)
		} else {
			resp, err = d.Destinations.Do(r.Context(), req, creds.AuthToken, spec.Name, opts...)
		}
		if err != nil {
			status := statusFor(err)
			log.Warn("destination call failed",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("status", status),
				zap.Error(err))
			http.Error(w, http.StatusText(status), status)
			return
		}
		if resp.StatusCode >= 400 {
			log.Info("backend returned error status",
				zap.String("method", req.Method),
				zap.String("url", req.URL),
				zap.Int("status", resp.StatusCode))
		}
		copyResponse(w, resp)
	}
}

func destinationConfigHandler(rt manifest.Route, d BuildDeps) http.HandlerFunc {
	spec := rt.Handler.Destination
	log := routeLog(d, rt)
	opts := callOptions(spec)

	return func(w http.ResponseWriter, r *http.Request) {
		if d.Destinations == nil {
			http.Error(w, "destination client unavailable", http.StatusBadGateway)
			return
		}
		dest, err := d.Destinations.Destination(r.Context(), spec.Name, opts...)
		if err != nil {
			status := statusFor(err)
			if connectivity.IsStatus(err, http.StatusNotFound) {
				status = http.StatusNotFound
			}
			log.Warn("destination lookup failed", zap.Int("status", status), zap.Error(err))
			http.Error(w, http.StatusText(status), status)
			return
		}
		out, err := codec.JSON.Marshal(dest.Redacted())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, out, http.StatusOK)
	}
}

func callOptions(spec *manifest.DestinationSpec) []connectivity.CallOption {
	// upstreamPath hands over the inbound path and query still encoded
	opts := []connectivity.CallOption{connectivity.WithEncodedURL()}
	if spec.IdentityService != "" {
		opts = append(opts, connectivity.WithIdentityService(spec.IdentityService))
	}
	if spec.NoEncoding {
		opts = append(opts, connectivity.WithNoEncoding())
	}
	return opts
}

func routeLog(d BuildDeps, rt manifest.Route) *zap.Logger {
	l := d.Log
	if l == nil {
		l = zap.NewNop()
	}
	return l.With(
		zap.String("route", rt.Method+" "+rt.Path),
		zap.String("destination", rt.Handler.Destination.Name),
	)
}

// upstreamPath joins the configured prefix, the wildcard remainder and the
// raw query, percent-encoded as they arrived. The result is appended to the
// destination URL.
func upstreamPath(prefix string, r *http.Request) string {
	p := strings.TrimRight(prefix, "/")
	if rest := httpx.Wildcard(r); rest != "" {
		if r.URL.RawPath == "" {
			// chi matched the decoded path; the default encoding is the original one
			rest = (&url.URL{Path: rest}).EscapedPath()
		}
		p += "/" + rest
	}
	if p == "" {
		p = "/"
	}
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return p
}

func forwardHeaders(r *http.Request, names []string, extra map[string]string) map[string]string {
	out := map[string]string{}
	all := make([]string, 0, len(names)+len(alwaysForwarded))
	all = append(append(all, names...), alwaysForwarded...)
	for _, n := range all {
		if v := r.Header.Get(n); v != "" {
			out[http.CanonicalHeaderKey(n)] = v
		}
	}
	if rid := chimd.GetReqID(r.Context()); rid != "" {
		out["X-Request-Id"] = rid
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func copyResponse(w http.ResponseWriter, resp *connectivity.Response) {
	h := w.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		h.Del(k)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// statusFor maps a client error to the status the gateway answers with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, connectivity.ErrConfiguration):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func writeCredsError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNoCredentials) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
