package router

import (
	"net/http"

	"github.com/shandysiswandi/mailmerge/internal/pkg/config"
)

// defaultMaxBodyBytes fits a recipient file plus a base64 attachment and banner.
const defaultMaxBodyBytes = 32 << 20

func middlewareBodyLimit(cfg config.Config) Middleware {
	limit := int64(defaultMaxBodyBytes)
	if cfg != nil && cfg.GetInt64("app.http.max_body_bytes") > 0 {
		limit = cfg.GetInt64("app.http.max_body_bytes")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
