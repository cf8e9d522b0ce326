package wfs

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"net/http"
	"os"
	"strconv"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/redis/go-redis/v9"
)

const maxBody = 64 << 20

// Client：GeoServer 客户端
// 背景：报表、检索、图层展示都经由此处访问 WFS；同一地址的响应在 Redis 中缓存 ttl 时长
// 约束：rc 为 nil 时不缓存；不做重试，失败由调用方决定是否终止流程
type Client struct {
	root string
	hc   *http.Client
	rc   *redis.Client
	ttl  time.Duration
	log  *slog.Logger
}

func NewClient(root string, hc *http.Client, rc *redis.Client, ttl time.Duration) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{root: root, hc: hc, rc: rc, ttl: ttl, log: logger.Component("wfs")}
}

// NewClientFromEnv：GEOSERVER_ROOT、WFS_TIMEOUT_MS、WFS_CACHE_TTL（秒，0 关闭缓存）
func NewClientFromEnv(rc *redis.Client) *Client {
	root := os.Getenv("GEOSERVER_ROOT")
	if root == "" {
		root = "http://localhost:8080/geoserver"
	}
	timeout := 15 * time.Second
	if s := os.Getenv("WFS_TIMEOUT_MS"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n > 0 {
			timeout = time.Duration(n) * time.Millisecond
		}
	}
	ttl := 5 * time.Minute
	if s := os.Getenv("WFS_CACHE_TTL"); s != "" {
		if n, e := strconv.Atoi(s); e == nil && n >= 0 {
			ttl = time.Duration(n) * time.Second
		}
	}
	if ttl == 0 {
		rc = nil
	}
	logger.L().Debug("config_geoserver", "root", root, "timeout_ms", timeout.Milliseconds(), "cache_ttl_s", int(ttl.Seconds()), "cache", rc != nil)
	return NewClient(root, &http.Client{Timeout: timeout}, rc, ttl)
}

func (c *Client) Root() string { return c.root }

func cacheKey(u string) string {
	sum := sha1.Sum([]byte(u))
	return "wfs:" + hex.EncodeToString(sum[:])
}

// GetFeatures：执行 GetFeature 并返回要素列表；零要素不是错误
func (c *Client) GetFeatures(ctx context.Context, q Query) ([]*geojson.Feature, error) {
	u := FeatureURL(c.root, q)
	key := cacheKey(u)
	if c.rc != nil {
		if b, err := c.rc.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
			if fc, err := geojson.UnmarshalFeatureCollection(b); err == nil {
				metrics.WFSCacheHitsTotal.Inc()
				c.log.Debug("wfs_cache_hit", "typename", q.TypeName, "features", len(fc.Features))
				return fc.Features, nil
			}
		}
		metrics.WFSCacheMissesTotal.Inc()
	}
	body, err := c.fetch(ctx, q, u)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		metrics.WFSFailTotal.WithLabelValues(q.TypeName).Inc()
		c.log.Error("wfs_decode_error", "typename", q.TypeName, "err", err)
		return nil, &FetchError{Op: "getfeature", TypeName: q.TypeName, Status: "parsererror", Err: err}
	}
	if c.rc != nil {
		if err := c.rc.Set(ctx, key, body, c.ttl).Err(); err != nil {
			c.log.Debug("wfs_cache_set_error", "err", err)
		}
	}
	return fc.Features, nil
}

func (c *Client) fetch(ctx context.Context, q Query, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{Op: "getfeature", TypeName: q.TypeName, Status: "error", Err: err}
	}
	t0 := time.Now()
	metrics.WFSRequestsTotal.WithLabelValues(q.TypeName).Inc()
	c.log.Debug("wfs_req", "typename", q.TypeName, "filter", q.Filter)
	resp, err := c.hc.Do(req)
	if err != nil {
		metrics.WFSFailTotal.WithLabelValues(q.TypeName).Inc()
		c.log.Error("wfs_http_error", "typename", q.TypeName, "err", err)
		return nil, &FetchError{Op: "getfeature", TypeName: q.TypeName, Status: "error", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	dur := time.Since(t0).Milliseconds()
	metrics.WFSDurationMs.WithLabelValues(q.TypeName).Observe(float64(dur))
	if resp.StatusCode != http.StatusOK {
		metrics.WFSFailTotal.WithLabelValues(q.TypeName).Inc()
		c.log.Error("wfs_status_error", "typename", q.TypeName, "status", resp.Status)
		return nil, &FetchError{Op: "getfeature", TypeName: q.TypeName, Status: resp.Status, Err: ErrBadStatus}
	}
	if err != nil {
		metrics.WFSFailTotal.WithLabelValues(q.TypeName).Inc()
		return nil, &FetchError{Op: "getfeature", TypeName: q.TypeName, Status: resp.Status, Err: fmt.Errorf("read body: %w", err)}
	}
	c.log.Debug("wfs_resp", "typename", q.TypeName, "bytes", len(body), "duration_ms", dur)
	return body, nil
}
