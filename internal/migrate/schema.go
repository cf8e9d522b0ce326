package migrate

import (
	"database/sql"
	"lrtp-viewer/internal/logger"
)

// 背景：首次运行自动创建报表运行记录与访问统计表
// 约束：使用 IF NOT EXISTS，可重复执行；阶段记录随运行记录级联删除
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _report_runs (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL,
            label TEXT NOT NULL DEFAULT '',
            filter TEXT NOT NULL DEFAULT '',
            outcome TEXT NOT NULL,
            halted_at TEXT NOT NULL DEFAULT '',
            started_at TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_report_runs_started ON _report_runs(started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS _report_stages (
            run_id BIGINT NOT NULL REFERENCES _report_runs(id) ON DELETE CASCADE,
            seq INT NOT NULL,
            stage TEXT NOT NULL,
            outcome TEXT NOT NULL,
            row_count INT NOT NULL DEFAULT 0,
            err TEXT NOT NULL DEFAULT '',
            duration_ms BIGINT NOT NULL DEFAULT 0,
            PRIMARY KEY (run_id, seq)
        )`,
		`CREATE TABLE IF NOT EXISTS _viewer_stats_total (
            id INT PRIMARY KEY,
            total_reports BIGINT NOT NULL DEFAULT 0,
            total_sessions BIGINT NOT NULL DEFAULT 0,
            total_visitors BIGINT NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS _viewer_stats_daily (
            day DATE PRIMARY KEY,
            reports BIGINT NOT NULL DEFAULT 0,
            sessions BIGINT NOT NULL DEFAULT 0,
            visitors BIGINT NOT NULL DEFAULT 0
        )`,
		`INSERT INTO _viewer_stats_total(id, total_reports, total_sessions, total_visitors)
         VALUES(1, 0, 0, 0)
         ON CONFLICT (id) DO NOTHING`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
