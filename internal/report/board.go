package report

import (
	"sync"
)

// Board：一个页面会话的报表显示区
// 背景：同一显示区只保留最新一次运行的输出；Begin 使旧运行的令牌作废，作废的写入被丢弃
type Board struct {
	mu       sync.Mutex
	gen      uint64
	kind     string
	crit     Criterion
	running  bool
	sections []Section
	notices  []Notice
	last     *Result
}

func NewBoard() *Board { return &Board{} }

// Ticket：一次运行对显示区的写入权，同时作为取消令牌
type Ticket struct {
	b   *Board
	gen uint64
}

func (t *Ticket) Generation() uint64 { return t.gen }

func (t *Ticket) Superseded() bool {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	return t.b.gen != t.gen
}

func (t *Ticket) Render(s Section) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if t.b.gen != t.gen {
		return
	}
	t.b.sections = append(t.b.sections, s)
}

func (t *Ticket) Notify(n Notice) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if t.b.gen != t.gen {
		return
	}
	t.b.notices = append(t.b.notices, n)
}

// Finish：记录运行结果；已被作废的运行不改变显示区
func (t *Ticket) Finish(r Result) {
	t.b.mu.Lock()
	defer t.b.mu.Unlock()
	if t.b.gen != t.gen {
		return
	}
	t.b.running = false
	t.b.last = &r
}

// Begin：清空显示区并开始新的运行
func (b *Board) Begin(kind string, c Criterion) *Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.kind = kind
	b.crit = c
	b.running = true
	b.sections = nil
	b.notices = nil
	b.last = nil
	return &Ticket{b: b, gen: b.gen}
}

// Clear：清空显示区，正在进行的运行随之作废
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.kind = ""
	b.crit = Criterion{}
	b.running = false
	b.sections = nil
	b.notices = nil
	b.last = nil
}

// View：显示区快照
type View struct {
	Generation uint64    `json:"generation"`
	Kind       string    `json:"kind"`
	Criterion  Criterion `json:"criterion"`
	Running    bool      `json:"running"`
	Sections   []Section `json:"sections"`
	Notices    []Notice  `json:"notices"`
	Result     *Result   `json:"result,omitempty"`
}

func (b *Board) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := View{
		Generation: b.gen,
		Kind:       b.kind,
		Criterion:  b.crit,
		Running:    b.running,
		Sections:   append([]Section(nil), b.sections...),
		Notices:    append([]Notice(nil), b.notices...),
	}
	if b.last != nil {
		r := *b.last
		v.Result = &r
	}
	return v
}

// Current：当前显示内容对应的流水线类型与条件
func (b *Board) Current() (string, Criterion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind, b.crit
}

// FindRow：在指定表中按列值精确查找第一行；sectionID 为空时搜索全部表
func (b *Board) FindRow(sectionID, field string, value any) (Row, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sections {
		if sectionID != "" && s.ID != sectionID {
			continue
		}
		for _, r := range s.Rows {
			if v, ok := r[field]; ok && sameValue(v, value) {
				return r, true
			}
		}
	}
	return nil, false
}
