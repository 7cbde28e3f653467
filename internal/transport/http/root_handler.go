package http

import (
	"io"
	"net/http"
)

// Banner answers the base route with a plain text liveness banner
func Banner(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, text)
	}
}
