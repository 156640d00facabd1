package logger

import (
	"net/http"
	"os"
	"strings"
	"sync"
)

// maxLoggedBody caps logged request bodies (64 KiB).
const maxLoggedBody = 1 << 16

var (
	bodyLogMu    sync.RWMutex
	bodyLogPaths = pathsFromEnv(os.Getenv("LOG_BODY_PATHS"))
)

func pathsFromEnv(v string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

// AddBodyLogPaths lets callers extend the allowlist at runtime (optional).
func AddBodyLogPaths(paths ...string) {
	bodyLogMu.Lock()
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p != "" {
			bodyLogPaths[p] = struct{}{}
		}
	}
	bodyLogMu.Unlock()
}

// wantsBody reports whether r's body may end up in the log, so only those
// bodies are buffered. Proxied uploads stream through untouched.
func wantsBody(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return false
	}
	if r.ContentLength > maxLoggedBody {
		return false
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return false
	}
	bodyLogMu.RLock()
	_, ok := bodyLogPaths[r.URL.Path]
	bodyLogMu.RUnlock()
	return ok
}

// Only log small JSON request bodies on allowlisted routes.
func shouldLogBody(r *http.Request, body []byte) bool {
	if len(body) == 0 || len(body) > maxLoggedBody {
		return false
	}
	return wantsBody(r)
}
