// Package site serves the embedded operator board: the current queue next
// to the cycle calendar, read from the JSON API.
package site

import (
	"context"
	"net/http"
)

// Register attaches the operator board at / to mux. More specific API
// routes registered on the same mux take precedence.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	mux.Handle("/", http.FileServer(FS()))
}
