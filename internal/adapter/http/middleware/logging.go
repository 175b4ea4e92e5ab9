package middleware

import (
	"net/http"
	"time"

	"github.com/dbarberos/APS-Integration-demoBIM-sub001/internal/infrastructure/logger"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach Flush on the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLog logs one line per request at debug level and turns handler
// panics into a 500.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error.Printf("panic serving %s %s: %v", r.Method, logger.SanitizeForLog(r.URL.Path), p)
				http.Error(rec, "Internal server error", http.StatusInternalServerError)
			}
			logger.Debug.Printf("%s %s %d %s", r.Method, logger.SanitizeForLog(r.URL.Path), rec.status, time.Since(start).Round(time.Millisecond))
		}()

		next.ServeHTTP(rec, r)
	})
}
