package middleware

import (
	"net/http"
	"runtime/debug"

	"advert-service/pkg/logger"
	"advert-service/pkg/utils"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Recoverer turns a panic into a 500 JSON error and logs the stack.
// http.ErrAbortHandler is re-raised so the server can abort the connection.
func Recoverer(loggers *logger.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				loggers.ErrorLogger.Error("panic recovered",
					"panic", rvr,
					"path", r.URL.Path,
					"request_id", chimiddleware.GetReqID(r.Context()),
					"stack", string(debug.Stack()),
				)

				if r.Header.Get("Connection") != "Upgrade" {
					utils.RespondWithErrorJSON(w, http.StatusInternalServerError, "internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
