package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/pedsa/pedsa/pkg/api/response"
	"github.com/pedsa/pedsa/pkg/logger"
)

// Recovery turns a handler panic into a 500 envelope. The panic value is
// logged but not echoed to the client. http.ErrAbortHandler is re-raised.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.ErrorContext(r.Context(), "Panic recovered",
					"error", fmt.Sprint(rec),
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", GetRequestID(r.Context()),
					"stack", string(debug.Stack()),
				)

				response.Error(w,
					http.StatusInternalServerError,
					response.ErrCodeInternalServer,
					"internal server error",
					GetRequestID(r.Context()),
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
