package logger

import (
	"log/slog"
	"net/http"
	"time"
)

// recorder 记录响应状态与字节数
type recorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

// AccessMiddleware：bench 指标端点的抓取日志；成功抓取记为 debug，其余状态记为 warn
func AccessMiddleware(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			rec := &recorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, req)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			level := slog.LevelDebug
			if rec.status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			l.Log(req.Context(), level, "metrics_scrape",
				"path", req.URL.Path,
				"status", rec.status,
				"bytes", rec.size,
				"took_us", time.Since(start).Microseconds(),
				"remote", req.RemoteAddr,
			)
		})
	}
}
