// Package middleware holds the HTTP middleware shared by every route.
package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLogger 记录每个请求，级别随状态码升高。
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if raw := r.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		var logEvent *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			logEvent = log.Error()
		case status >= http.StatusBadRequest:
			logEvent = log.Warn()
		default:
			logEvent = log.Info()
		}

		logEvent.
			Str("component", "http").
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", path).
			Int("status", status).
			Str("ip", r.RemoteAddr).
			Dur("latency", time.Since(start)).
			Str("user_agent", r.UserAgent()).
			Msg("Request processed")
	})
}

// CORS 允许前端开发服务器跨域访问。
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
