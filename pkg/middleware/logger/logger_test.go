package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/joeydtaylor/steeze-connect/pkg/middleware/auth"
)

func TestShouldLogBody(t *testing.T) {
	AddBodyLogPaths("/echo", " ")

	cases := []struct {
		name   string
		method string
		path   string
		ct     string
		body   string
		want   bool
	}{
		{"allowlisted json post", http.MethodPost, "/echo", "application/json; charset=utf-8", `{"a":1}`, true},
		{"get never", http.MethodGet, "/echo", "application/json", `{"a":1}`, false},
		{"not allowlisted", http.MethodPost, "/orders", "application/json", `{"a":1}`, false},
		{"not json", http.MethodPut, "/echo", "text/plain", "hi", false},
		{"empty", http.MethodPatch, "/echo", "application/json", "", false},
		{"too big", http.MethodPost, "/echo", "application/json", strings.Repeat("a", maxLoggedBody+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			r.Header.Set("Content-Type", tc.ct)
			assert.Equal(t, tc.want, shouldLogBody(r, []byte(tc.body)))
		})
	}
}

func TestMiddleware_AccessLine(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetAccessLogger(zap.New(core))
	AddBodyLogPaths("/echo")

	a, err := auth.New(auth.Config{DevBypass: true})
	require.NoError(t, err)

	var seen string
	h := a.Middleware()((&Middleware{}).Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"x":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dev-User", "dev")
	req.Header.Set("X-Dev-Scopes", "Read")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, `{"x":1}`, seen, "body restored for the handler")
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "dev", fields["username"])
	assert.Equal(t, "Read", fields["scopes"])
	assert.EqualValues(t, http.StatusCreated, fields["status"])
	assert.EqualValues(t, 2, fields["responseSize"])
	assert.Equal(t, `{"x":1}`, fields["requestData"])
}
