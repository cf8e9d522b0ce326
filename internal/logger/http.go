// 包 logger：http 访问日志中间件，记录方法、路径、状态、耗时、字节数、远端地址与访客国家
package logger

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// statusWriter：包装 ResponseWriter 以捕获状态码与写出字节数
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// CountryLookup：按 IP 返回 ISO 国家码；查不到返回空串
type CountryLookup interface {
	Country(ip string) string
}

// ClientIP：解析访问者 IP，优先常见反向代理头，最后回退 RemoteAddr
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	if x := h.Get("x-real-ip"); x != "" {
		return x
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AccessMiddleware：生成访问日志中间件
// 约束：不读取请求体；geo 为 nil 时不输出 country 字段
func AccessMiddleware(l *slog.Logger, geo CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			ip := ClientIP(r)
			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes", sw.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ip,
			}
			if geo != nil {
				if c := geo.Country(ip); c != "" {
					attrs = append(attrs, "country", c)
				}
			}
			l.Debug("http_access", attrs...)
		})
	}
}
