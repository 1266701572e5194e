package middleware

import (
	"net/http"
	"time"

	"advert-service/pkg/logger"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Logging writes one structured entry per request once the response is done.
// 5xx responses go to the error logger.
func Logging(loggers *logger.Loggers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}

				l := loggers.InfoLogger
				if status >= http.StatusInternalServerError {
					l = loggers.ErrorLogger
				}
				l.Info("http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start).String(),
					"remote_addr", r.RemoteAddr,
					"request_id", chimiddleware.GetReqID(r.Context()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
