package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(log *logrus.Logger, resolver TokenResolver) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(RequestLogger(log))
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(Authenticate(resolver))
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})
	return r
}

// RequestLogger logs one line per request with latency and status.
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			entry := log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"latency_ms": time.Since(start).Milliseconds(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			switch {
			case ww.Status() >= 500:
				entry.Error("request")
			case ww.Status() >= 400:
				entry.Warn("request")
			default:
				entry.Info("request")
			}
		})
	}
}
