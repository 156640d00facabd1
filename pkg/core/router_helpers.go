package core

import (
	"net/http"

	"github.com/joeydtaylor/steeze-connect/pkg/codec"
)

// writeJSON writes payload, or {} when it is empty.
func writeJSON(w http.ResponseWriter, payload []byte, status int) {
	w.Header().Set("Content-Type", codec.JSON.ContentType())
	w.WriteHeader(status)
	if len(payload) == 0 {
		payload = []byte(`{}`)
	}
	_, _ = w.Write(payload)
}

func statusIf(s, def int) int {
	if s > 0 {
		return s
	}
	return def
}
