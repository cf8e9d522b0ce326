package session

import (
	"context"
	"errors"
	"log/slog"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrNoSession = errors.New("session not found")

const defaultCapacity = 1024

// Manager：内存中的会话表
// 背景：会话数超过容量时淘汰最久未使用的会话，被淘汰会话的运行随之取消
type Manager struct {
	deps  Deps
	base  context.Context
	cache *lru.Cache[string, *Context]
	idle  time.Duration
	log   *slog.Logger
}

// NewManager：capacity<=0 时使用默认容量；idle 为 0 时不按空闲时间清理
func NewManager(base context.Context, d Deps, capacity int, idle time.Duration) (*Manager, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	m := &Manager{deps: d, base: base, idle: idle, log: logger.Component("session")}
	c, err := lru.NewWithEvict[string, *Context](capacity, func(id string, sc *Context) {
		sc.Close()
		m.log.Debug("session_evicted", "session", id)
	})
	if err != nil {
		return nil, err
	}
	m.cache = c
	return m, nil
}

// CapacityFromEnv：SESSION_CAP 与 SESSION_IDLE_MIN
func CapacityFromEnv() (int, time.Duration) {
	capacity := defaultCapacity
	if n, err := strconv.Atoi(os.Getenv("SESSION_CAP")); err == nil && n > 0 {
		capacity = n
	}
	idle := 60 * time.Minute
	if n, err := strconv.Atoi(os.Getenv("SESSION_IDLE_MIN")); err == nil && n >= 0 {
		idle = time.Duration(n) * time.Minute
	}
	return capacity, idle
}

func (m *Manager) gauge() { metrics.SessionsAlive.Set(float64(m.cache.Len())) }

// Create：新建会话
func (m *Manager) Create() *Context {
	id := uuid.NewString()
	sc := newContext(m.base, id, m.deps)
	m.cache.Add(id, sc)
	m.gauge()
	m.log.Info("session_created", "session", id)
	return sc
}

// Get：按 id 取会话并刷新最近使用时间，只读轮询也算作活动
func (m *Manager) Get(id string) (*Context, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNoSession
	}
	sc, ok := m.cache.Get(id)
	if !ok {
		return nil, ErrNoSession
	}
	sc.touch()
	return sc, nil
}

// Delete：关闭并移除会话
func (m *Manager) Delete(id string) bool {
	ok := m.cache.Remove(id)
	m.gauge()
	if ok {
		m.log.Info("session_closed", "session", id)
	}
	return ok
}

func (m *Manager) Len() int { return m.cache.Len() }

// Sweep：移除空闲超过 idle 的会话，返回移除数
func (m *Manager) Sweep(now time.Time) int {
	if m.idle <= 0 {
		return 0
	}
	n := 0
	for _, id := range m.cache.Keys() {
		sc, ok := m.cache.Peek(id)
		if ok && now.Sub(sc.LastUsed()) > m.idle {
			if m.cache.Remove(id) {
				n++
			}
		}
	}
	m.gauge()
	if n > 0 {
		m.log.Info("session_sweep", "removed", n, "alive", m.cache.Len())
	}
	return n
}

// StartSweeper：按 interval 周期清理，ctx 结束时退出
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if m.idle <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				m.Sweep(now)
			}
		}
	}()
}

// CloseAll：进程退出时取消全部会话
func (m *Manager) CloseAll() {
	m.cache.Purge()
	m.gauge()
}
