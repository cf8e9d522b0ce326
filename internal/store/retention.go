package store

import (
	"context"
	"lrtp-viewer/internal/logger"
	"os"
	"strconv"
	"time"
)

// nextMondayAt：now 之后最近一个周一 hour 点（不含当前已过时的当周）
func nextMondayAt(now time.Time, loc *time.Location, hour int) time.Time {
	now = now.In(loc)
	for i := 0; i <= 7; i++ {
		d := now.AddDate(0, 0, i)
		if d.Weekday() == time.Monday {
			t := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
			if t.After(now) {
				return t
			}
		}
	}
	d := now.AddDate(0, 0, 7)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
}

// KeepDaysFromEnv：RUNS_KEEP_DAYS，默认 90
func KeepDaysFromEnv() int {
	if s := os.Getenv("RUNS_KEEP_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 90
}

// StartWeeklyRetention：每周一 RUNS_PRUNE_HOUR 点（America/New_York，默认 4 点）清理过期运行历史
// 约束：错误只记日志，任务继续调度；ctx 取消时退出
func (s *Store) StartWeeklyRetention(ctx context.Context) {
	l := logger.Component("retention")
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.UTC
	}
	hour := 4
	if h := os.Getenv("RUNS_PRUNE_HOUR"); h != "" {
		if n, err := strconv.Atoi(h); err == nil && n >= 0 && n < 24 {
			hour = n
		}
	}
	keep := KeepDaysFromEnv()
	next := nextMondayAt(time.Now(), loc, hour)
	l.Info("retention_scheduled", "next", next, "keep_days", keep)
	go func() {
		for {
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			n, err := s.PruneRuns(ctx, time.Now().AddDate(0, 0, -keep), false)
			if err != nil {
				l.Error("retention_error", "err", err)
			} else {
				l.Info("retention_done", "runs", n)
			}
			next = next.AddDate(0, 0, 7)
		}
	}()
}
