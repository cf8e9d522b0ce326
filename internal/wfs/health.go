package wfs

import (
	"context"
	"fmt"
	"io"
	"lrtp-viewer/internal/metrics"
	"net/http"
	"sync"
	"time"
)

// Health：最近一次心跳结果
type Health struct {
	Healthy bool      `json:"healthy"`
	Last    time.Time `json:"last"`
	Err     string    `json:"err,omitempty"`
}

// Monitor：GeoServer 心跳
// 背景：周期请求 GetCapabilities 判定上游是否可用，供 /health 与指标读取
// 约束：默认周期 30s；未完成首次心跳前视为健康
type Monitor struct {
	mu       sync.RWMutex
	c        *Client
	interval time.Duration
	st       Health
}

func NewMonitor(c *Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{c: c, interval: interval, st: Health{Healthy: true}}
}

// Start：立即执行一次心跳，之后按周期执行，ctx 取消时退出
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		m.Check(ctx)
		t := time.NewTicker(m.interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Check(ctx)
			}
		}
	}()
}

// Check：执行一次心跳并更新状态
func (m *Monitor) Check(ctx context.Context) error {
	err := m.ping(ctx)
	h := Health{Healthy: err == nil, Last: time.Now()}
	if err != nil {
		h.Err = err.Error()
		m.c.log.Warn("upstream_heartbeat_fail", "err", err)
		metrics.UpstreamHeartbeatTotal.WithLabelValues("fail").Inc()
		metrics.UpstreamHealthy.Set(0)
	} else {
		m.c.log.Debug("upstream_heartbeat_ok")
		metrics.UpstreamHeartbeatTotal.WithLabelValues("ok").Inc()
		metrics.UpstreamHealthy.Set(1)
	}
	m.mu.Lock()
	m.st = h
	m.mu.Unlock()
	return err
}

func (m *Monitor) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, capabilitiesURL(m.c.root), nil)
	if err != nil {
		return err
	}
	resp, err := m.c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("getcapabilities: %s", resp.Status)
	}
	return nil
}

func (m *Monitor) Status() Health {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}
