package legend

import (
	"log/slog"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"sync"
)

const (
	// MaxSlots：图例槽位总数
	MaxSlots = 5
	// NotDisplayed：类别当前没有图例
	NotDisplayed = 0
)

// Slot：已占用槽位的只读快照，Index 从 1 开始
type Slot struct {
	Index    int      `json:"index"`
	Category Category `json:"category"`
	Header   string   `json:"header"`
	Content  string   `json:"content"`
	Width    int      `json:"width"`
}

type slot struct {
	occupied bool
	cat      Category
	header   string
	content  string
}

// Allocator：一个页面会话的图例槽位银行
// 约束：slots[0:used] 全部占用，slots[used:] 全部为空；所有方法持锁执行，压缩过程对外不可见
type Allocator struct {
	mu    sync.Mutex
	slots [MaxSlots]slot
	used  int
	log   *slog.Logger
}

func NewAllocator(l *slog.Logger) *Allocator {
	if l == nil {
		l = logger.Component("legend")
	}
	return &Allocator{log: l}
}

func (a *Allocator) indexOf(c Category) int {
	for i := 0; i < a.used; i++ {
		if a.slots[i].cat == c {
			return i
		}
	}
	return -1
}

// Add：为类别占用最低的空槽位
// 槽位已满、类别非法或类别已有图例时只记日志，不改变状态，返回 false
func (a *Allocator) Add(c Category, header, content string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !c.Valid() {
		a.log.Warn("legend_add_invalid_category", "category", int(c))
		metrics.LegendRejectedTotal.WithLabelValues("invalid").Inc()
		return false
	}
	if i := a.indexOf(c); i >= 0 {
		a.log.Warn("legend_add_duplicate", "category", c.String(), "slot", i+1)
		metrics.LegendRejectedTotal.WithLabelValues("duplicate").Inc()
		return false
	}
	if a.used >= MaxSlots {
		a.log.Warn("legend_bank_full", "category", c.String(), "max", MaxSlots)
		metrics.LegendRejectedTotal.WithLabelValues("full").Inc()
		return false
	}
	a.slots[a.used] = slot{occupied: true, cat: c, header: header, content: content}
	a.used++
	a.log.Debug("legend_add", "category", c.String(), "slot", a.used)
	metrics.LegendSlotsOccupied.Observe(float64(a.used))
	return true
}

// Remove：释放类别的槽位，其上方的图例逐个下移一位，最高的原占用槽位置空
// 类别没有图例时为空操作，返回 false
func (a *Allocator) Remove(c Category) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexOf(c)
	if i < 0 {
		return false
	}
	for j := i + 1; j < a.used; j++ {
		a.log.Debug("legend_shift", "category", a.slots[j].cat.String(), "from", j+1, "to", j)
		a.slots[j-1] = a.slots[j]
	}
	a.slots[a.used-1] = slot{}
	a.used--
	a.log.Debug("legend_remove", "category", c.String(), "slot", i+1, "occupied", a.used)
	metrics.LegendSlotsOccupied.Observe(float64(a.used))
	return true
}

// SlotOf：类别所在槽位，未显示返回 NotDisplayed
func (a *Allocator) SlotOf(c Category) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexOf(c) + 1
}

// Len：已占用槽位数
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

// Slots：按槽位顺序返回已占用槽位
func (a *Allocator) Slots() []Slot {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Slot, 0, a.used)
	for i := 0; i < a.used; i++ {
		s := a.slots[i]
		out = append(out, Slot{Index: i + 1, Category: s.cat, Header: s.header, Content: s.content, Width: s.cat.Width()})
	}
	return out
}

// Registry：全部类别到槽位的映射，未显示的类别为 NotDisplayed
func (a *Allocator) Registry() map[Category]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		out[c] = a.indexOf(c) + 1
	}
	return out
}
