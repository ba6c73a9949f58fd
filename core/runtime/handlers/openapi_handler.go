package handlers

import (
	"net/http"

	"github.com/hyperterse/codemode/core/spec"
)

// SpecHandler serves the resolved spec exactly as query scripts see it.
func SpecHandler(index *spec.Index) http.HandlerFunc {
	source := []byte(index.Source())
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(source)
	}
}
