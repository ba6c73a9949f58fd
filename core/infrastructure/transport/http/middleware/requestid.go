package middleware

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	sharedctx "github.com/hyperterse/codemode/core/shared/context"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

var validate = validator.New()

// RequestID stores a request id in the context and echoes it back. A
// caller-supplied id is kept when it is short printable ASCII; otherwise a
// fresh one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || validate.Var(id, "printascii,max=128") != nil {
			id = sharedctx.GenerateRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(sharedctx.WithRequestID(r.Context(), id)))
	})
}
