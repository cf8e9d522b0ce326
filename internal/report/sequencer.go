package report

import (
	"context"
	"errors"
	"log/slog"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"lrtp-viewer/internal/wfs"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

const DefaultEmptyNotice = "No features found--try another"

// Fetcher：WFS 取数
type Fetcher interface {
	GetFeatures(ctx context.Context, q wfs.Query) ([]*geojson.Feature, error)
}

// Display：报表显示区
type Display interface {
	Render(s Section)
	Notify(n Notice)
}

// Token：取消令牌；新流水线启动后旧令牌被作废
type Token interface {
	Superseded() bool
}

// Recorder：运行结果持久化，可为 nil
type Recorder interface {
	RecordRun(ctx context.Context, r Result) error
}

// Sequencer：流水线驱动
// 背景：替代逐级回调，阶段列表由循环按序消费；每个阶段开始前与取数返回后检查令牌
// 约束：同一次运行内不并发取数；失败不重试
type Sequencer struct {
	f   Fetcher
	rec Recorder
	log *slog.Logger
}

func NewSequencer(f Fetcher, rec Recorder) *Sequencer {
	return &Sequencer{f: f, rec: rec, log: logger.Component("report")}
}

func cancelled(ctx context.Context, tok Token) bool {
	return ctx.Err() != nil || (tok != nil && tok.Superseded())
}

// Run：按序执行流水线，结果写入 d，返回运行摘要
func (s *Sequencer) Run(ctx context.Context, p Pipeline, c Criterion, d Display, tok Token) Result {
	res := Result{Kind: p.Kind, Criterion: c, Started: time.Now(), Outcome: OutcomeCompleted}
	s.log.Info("report_run_begin", "pipeline", p.Kind, "label", c.Label, "filter", c.Filter, "stages", len(p.Stages))
	for _, st := range p.Stages {
		if cancelled(ctx, tok) {
			res.Stages = append(res.Stages, StageResult{Stage: st.Name, Outcome: OutcomeCancelled})
			res.Outcome = OutcomeCancelled
			s.log.Info("report_run_superseded", "pipeline", p.Kind, "stage", st.Name)
			break
		}
		sr := s.runStage(ctx, p.Kind, st, c, d, tok)
		res.Stages = append(res.Stages, sr)
		if sr.Outcome != OutcomeRendered {
			res.Outcome = sr.Outcome
			break
		}
	}
	res.Finished = time.Now()
	metrics.ReportRunsTotal.WithLabelValues(p.Kind, string(res.Outcome)).Inc()
	s.log.Info("report_run_done", "pipeline", p.Kind, "outcome", res.Outcome, "halted_at", res.HaltedAt(), "duration_ms", res.Finished.Sub(res.Started).Milliseconds())
	if s.rec != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.rec.RecordRun(rctx, res); err != nil {
			s.log.Error("report_record_error", "err", err)
		}
		cancel()
	}
	return res
}

func (s *Sequencer) runStage(ctx context.Context, kind string, st Stage, c Criterion, d Display, tok Token) (sr StageResult) {
	t0 := time.Now()
	sr.Stage = st.Name
	defer func() {
		sr.DurationMs = time.Since(t0).Milliseconds()
		metrics.ReportStagesTotal.WithLabelValues(kind, st.Name, string(sr.Outcome)).Inc()
		metrics.ReportStageDurationMs.WithLabelValues(kind, st.Name).Observe(float64(sr.DurationMs))
	}()
	q := wfs.Query{TypeName: st.TypeName, Properties: st.Properties}
	if !st.Unfiltered {
		q.Filter = c.Filter
	}
	fs, err := s.f.GetFeatures(ctx, q)
	if cancelled(ctx, tok) {
		sr.Outcome = OutcomeCancelled
		return sr
	}
	if err != nil {
		sr.Outcome = OutcomeFailed
		sr.Err = err.Error()
		s.log.Error("report_stage_failed", "pipeline", kind, "stage", st.Name, "err", err)
		d.Notify(Notice{Kind: NoticeError, Stage: st.Name, Text: FailureText(st, err)})
		return sr
	}
	if len(fs) == 0 {
		sr.Outcome = OutcomeEmpty
		msg := st.EmptyNotice
		if msg == "" {
			msg = DefaultEmptyNotice
		}
		s.log.Info("report_stage_empty", "pipeline", kind, "stage", st.Name)
		d.Notify(Notice{Kind: NoticeEmpty, Stage: st.Name, Text: msg})
		return sr
	}
	for _, sec := range BuildSections(st, fs, c) {
		sr.Rows += len(sec.Rows)
		d.Render(sec)
	}
	sr.Outcome = OutcomeRendered
	s.log.Debug("report_stage_rendered", "pipeline", kind, "stage", st.Name, "features", len(fs), "rows", sr.Rows)
	return sr
}

// BuildSections：把要素转成阶段的各张表，每张表按自己的排序键稳定升序
func BuildSections(st Stage, fs []*geojson.Feature, c Criterion) []Section {
	out := make([]Section, 0, len(st.Sections))
	for _, spec := range st.Sections {
		sec := Section{ID: spec.ID, Tab: spec.Tab, Stage: st.Name, Columns: spec.Columns, Rows: make([]Row, 0, len(fs))}
		if spec.Caption != nil {
			sec.Caption = spec.Caption(c)
		}
		for _, f := range fs {
			if f == nil {
				continue
			}
			if r, keep := spec.Row(f.Properties, c); keep {
				sec.Rows = append(sec.Rows, r)
			}
		}
		SortRows(sec.Rows, spec.SortKey)
		out = append(out, sec)
	}
	return out
}

// FailureText：取数失败提示，包含阶段主题、状态与错误
func FailureText(st Stage, err error) string {
	status, cause := "error", err
	var fe *wfs.FetchError
	if errors.As(err, &fe) {
		status = fe.Status
		if fe.Err != nil {
			cause = fe.Err
		}
	}
	return "WFS request to get " + st.Subject + " failed.\nStatus: " + status + "\nError: " + cause.Error()
}
