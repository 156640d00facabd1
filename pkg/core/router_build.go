package core

import (
	"net/http"
	"strings"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	manifest "github.com/joeydtaylor/steeze-connect/pkg/manifest"
	hmetrics "github.com/joeydtaylor/steeze-connect/pkg/middleware/metrics"
)

// BuildRouter mounts the shared middleware, /metrics and every manifest route.
// Each route is wrapped as guard -> timeout -> handler.
func BuildRouter(cfg manifest.Config, d BuildDeps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))

	if d.Auth != nil {
		r.Use(d.Auth.Middleware())
		if d.LogMW != nil {
			r.Use(d.LogMW.Middleware(d.Auth))
		}
		// metrics collector that references auth state without copying it
		r.Use(hmetrics.Collect(d.Auth))
	} else if d.LogMW != nil {
		r.Use(d.LogMW.Middleware(nil))
	}

	if d.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", d.Metrics)
	}

	for _, rt := range cfg.Routes {
		h := withGuard(withTimeout(wrapRoute(rt, d), rt.Policy), d.Auth, rt.Guard)

		switch strings.ToUpper(rt.Method) {
		case http.MethodGet:
			r.Get(rt.Path, h)
		case http.MethodPost:
			r.Post(rt.Path, h)
		case http.MethodPut:
			r.Put(rt.Path, h)
		case http.MethodDelete:
			r.Delete(rt.Path, h)
		default:
			r.Handle(rt.Method, rt.Path, h)
		}

		fields := []zap.Field{
			zap.String("method", rt.Method),
			zap.String("path", rt.Path),
			zap.String("handler", string(rt.Handler.Type)),
		}
		if ds := rt.Handler.Destination; ds != nil {
			fields = append(fields, zap.String("destination", ds.Name))
		}
		log.Debug("route mounted", fields...)
	}
	return r.Mux()
}
