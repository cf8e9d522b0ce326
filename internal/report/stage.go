// 包 report：报表流水线。各阶段按固定顺序逐个执行：取数、排序、渲染，空结果或取数失败即终止
package report

import "time"

// Criterion：一次流水线运行共用的过滤条件与显示标签
type Criterion struct {
	Filter string `json:"filter"`
	Label  string `json:"label"`
}

// Column：表格列，Field 为行内键名
type Column struct {
	Header string `json:"header"`
	Field  string `json:"field"`
}

// Row：一行渲染数据，数值列保存为 float64，格式化列保存为字符串
type Row map[string]any

// SectionSpec：阶段产出的一张表
// Row 返回 false 时丢弃该要素
type SectionSpec struct {
	ID      string
	Tab     string
	Caption func(c Criterion) string
	Columns []Column
	SortKey string
	Row     func(p map[string]any, c Criterion) (Row, bool)
}

// Stage：一个取数阶段
// Unfiltered 为 true 时不附带条件；EmptyNotice 为空时使用 DefaultEmptyNotice
type Stage struct {
	Name        string
	Subject     string
	TypeName    string
	Properties  []string
	Unfiltered  bool
	EmptyNotice string
	Sections    []SectionSpec
}

// Pipeline：有序阶段列表
type Pipeline struct {
	Kind   string
	Stages []Stage
}

// Section：渲染到显示区的一张表
type Section struct {
	ID      string   `json:"id"`
	Tab     string   `json:"tab"`
	Stage   string   `json:"stage"`
	Caption string   `json:"caption"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

type NoticeKind string

const (
	NoticeEmpty NoticeKind = "empty"
	NoticeError NoticeKind = "error"
)

// Notice：提示信息，空结果与取数失败各一种
type Notice struct {
	Kind  NoticeKind `json:"kind"`
	Stage string     `json:"stage"`
	Text  string     `json:"text"`
}

type Outcome string

const (
	OutcomeRendered  Outcome = "rendered"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeCompleted Outcome = "completed"
)

// StageResult：单个阶段的执行结果
type StageResult struct {
	Stage      string  `json:"stage"`
	Outcome    Outcome `json:"outcome"`
	Rows       int     `json:"rows"`
	Err        string  `json:"err,omitempty"`
	DurationMs int64   `json:"durationMs"`
}

// Result：一次流水线运行的结果；Outcome 为最后一个阶段的结果，全部渲染时为 completed
type Result struct {
	Kind      string        `json:"kind"`
	Criterion Criterion     `json:"criterion"`
	Stages    []StageResult `json:"stages"`
	Outcome   Outcome       `json:"outcome"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
}

// HaltedAt：终止所在阶段名；完整运行返回空串
func (r Result) HaltedAt() string {
	if r.Outcome == OutcomeCompleted || len(r.Stages) == 0 {
		return ""
	}
	return r.Stages[len(r.Stages)-1].Stage
}
