package middleware

import (
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
)

// 文档注释：令牌桶限流（每秒）
// 背景：报表请求会向 GeoServer 连续发出多次 WFS 查询，入口限速保护上游；按环境变量开关与速率配置。
// 约束：简化实现，不做队列排队，仅丢弃并返回 429。
type TokenBucket struct {
	capacity int
	tokens   int
	lastSec  int64
	now      func() time.Time
	mu       sync.Mutex
}

func NewTokenBucket(qps int) *TokenBucket {
	return &TokenBucket{capacity: qps, tokens: qps, lastSec: time.Now().Unix(), now: time.Now}
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	nowSec := tb.now().Unix()
	if tb.lastSec != nowSec {
		tb.lastSec = nowSec
		tb.tokens = tb.capacity
	}
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Limit：超出速率时返回 429，scope 用于日志与指标
func Limit(tb *TokenBucket, scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !tb.Allow() {
			metrics.HTTPThrottledTotal.WithLabelValues(scope).Inc()
			logger.L().Debug("rate_limited", "scope", scope, "path", r.URL.Path, "ip", logger.ClientIP(r))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func qpsFromEnv(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			return n
		}
	}
	return def
}

// Wrap：全局限流，RATE_LIMIT_ENABLED=true 时生效，速率 RATE_LIMIT_QPS
func Wrap(next http.Handler) http.Handler {
	if os.Getenv("RATE_LIMIT_ENABLED") != "true" {
		return next
	}
	qps := qpsFromEnv("RATE_LIMIT_QPS", 200)
	logger.L().Debug("config_rate_limit", "scope", "global", "qps", qps)
	return Limit(NewTokenBucket(qps), "global", next)
}

// ReportLimiter：报表启动接口单独限流，速率 REPORT_RATE_QPS，默认 20
func ReportLimiter() func(http.Handler) http.Handler {
	tb := NewTokenBucket(qpsFromEnv("REPORT_RATE_QPS", 20))
	return func(next http.Handler) http.Handler { return Limit(tb, "report", next) }
}
