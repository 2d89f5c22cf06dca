package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/clanadmin/internal/api/apierr"
	"github.com/mcoot/clanadmin/internal/middleware"
)

// Recovery turns a handler panic into a 500 error envelope that quotes the
// request id, so staff can find the matching log line.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger, func(w http.ResponseWriter, _ *http.Request, _ any) {
		err := apierr.NewInternalError()
		if id := w.Header().Get(middleware.RequestIDHeader); id != "" {
			err = apierr.NewInternalErrorWithRequestID(id)
		}
		apierr.WriteError(w, err)
	})
}
