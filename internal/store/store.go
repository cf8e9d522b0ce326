// 包 store: PostgreSQL 数据访问层，保存报表运行记录与访问统计
package store

import (
	"context"
	"database/sql"
	"errors"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/report"
	"time"

	"github.com/lib/pq"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Open: 使用 DSN 打开数据库连接并配置连接池参数
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// RecordRun: 在一个事务内写入运行记录及其阶段记录，并递增报表计数
func (s *Store) RecordRun(ctx context.Context, r report.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var id int64
	err = tx.QueryRowContext(ctx, `INSERT INTO _report_runs(kind, label, filter, outcome, halted_at, started_at, finished_at)
        VALUES($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		r.Kind, r.Criterion.Label, r.Criterion.Filter, string(r.Outcome), r.HaltedAt(), r.Started, r.Finished,
	).Scan(&id)
	if err != nil {
		return err
	}
	for i, st := range r.Stages {
		if _, err := tx.ExecContext(ctx, `INSERT INTO _report_stages(run_id, seq, stage, outcome, row_count, err, duration_ms)
            VALUES($1,$2,$3,$4,$5,$6,$7)`,
			id, i, st.Stage, string(st.Outcome), st.Rows, st.Err, st.DurationMs); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE _viewer_stats_total SET total_reports=total_reports+1 WHERE id=1"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO _viewer_stats_daily(day, reports) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET reports=_viewer_stats_daily.reports+1"); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	logger.L().Debug("db_run_recorded", "run_id", id, "kind", r.Kind, "outcome", r.Outcome, "stages", len(r.Stages))
	return nil
}

// Run: 运行记录，用于接口返回
type Run struct {
	ID         int64                `json:"id"`
	Kind       string               `json:"kind"`
	Label      string               `json:"label"`
	Filter     string               `json:"filter"`
	Outcome    string               `json:"outcome"`
	HaltedAt   string               `json:"haltedAt,omitempty"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt"`
	Stages     []report.StageResult `json:"stages"`
}

// RecentRuns: 最近的运行记录，按开始时间倒序；kind 为空时不过滤
func (s *Store) RecentRuns(ctx context.Context, kind string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, kind, label, filter, outcome, halted_at, started_at, finished_at
        FROM _report_runs
        WHERE ($1 = '' OR kind = $1)
        ORDER BY started_at DESC
        LIMIT $2`, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	idx := map[int64]int{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Kind, &r.Label, &r.Filter, &r.Outcome, &r.HaltedAt, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		idx[r.ID] = len(out)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.ID)
	}
	srows, err := s.db.QueryContext(ctx, `
        SELECT run_id, stage, outcome, row_count, err, duration_ms
        FROM _report_stages
        WHERE run_id = ANY($1)
        ORDER BY run_id, seq`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer srows.Close()
	for srows.Next() {
		var id int64
		var st report.StageResult
		var outcome string
		if err := srows.Scan(&id, &st.Stage, &outcome, &st.Rows, &st.Err, &st.DurationMs); err != nil {
			return nil, err
		}
		st.Outcome = report.Outcome(outcome)
		if i, ok := idx[id]; ok {
			out[i].Stages = append(out[i].Stages, st)
		}
	}
	logger.L().Debug("db_recent_runs", "kind", kind, "count", len(out))
	return out, srows.Err()
}

// IncrStats: 新建会话时递增总计与当日会话数；当日首次出现的访客同时递增访客数
// 约束：单条失败不影响其余计数，返回第一个错误
func (s *Store) IncrStats(ctx context.Context, newVisitor bool) error {
	stmts := []string{
		"UPDATE _viewer_stats_total SET total_sessions=total_sessions+1 WHERE id=1",
		"INSERT INTO _viewer_stats_daily(day, sessions) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET sessions=_viewer_stats_daily.sessions+1",
	}
	if newVisitor {
		stmts = append(stmts,
			"UPDATE _viewer_stats_total SET total_visitors=total_visitors+1 WHERE id=1",
			"INSERT INTO _viewer_stats_daily(day, visitors) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET visitors=_viewer_stats_daily.visitors+1",
		)
	}
	var first error
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		logger.L().Error("stats_incr_error", "new_visitor", newVisitor, "err", first)
		return first
	}
	logger.L().Debug("stats_incr", "new_visitor", newVisitor)
	return nil
}

// Totals: 累计与当日的报表数、会话数
type Totals struct {
	TotalReports  int64 `json:"totalReports"`
	TotalSessions int64 `json:"totalSessions"`
	TotalVisitors int64 `json:"totalVisitors"`
	TodayReports  int64 `json:"todayReports"`
	TodaySessions int64 `json:"todaySessions"`
	TodayVisitors int64 `json:"todayVisitors"`
}

// GetTotals：当日尚无记录时当日计数为 0
func (s *Store) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT total_reports, total_sessions, total_visitors FROM _viewer_stats_total WHERE id=1")
	if err := row.Scan(&t.TotalReports, &t.TotalSessions, &t.TotalVisitors); err != nil {
		return nil, err
	}
	row2 := s.db.QueryRowContext(ctx, "SELECT reports, sessions, visitors FROM _viewer_stats_daily WHERE day=current_date")
	if err := row2.Scan(&t.TodayReports, &t.TodaySessions, &t.TodayVisitors); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	logger.L().Debug("stats_totals", "reports", t.TotalReports, "sessions", t.TotalSessions)
	return &t, nil
}

// PruneRuns: 删除早于 before 的运行记录，阶段记录级联删除；dryRun 时只统计
func (s *Store) PruneRuns(ctx context.Context, before time.Time, dryRun bool) (int64, error) {
	if dryRun {
		var n int64
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM _report_runs WHERE started_at < $1", before).Scan(&n)
		return n, err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM _report_runs WHERE started_at < $1", before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
