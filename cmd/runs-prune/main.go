package main

import (
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/store"
	"lrtp-viewer/internal/utils"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// 文档注释：报表运行历史保留窗口
// 背景：_report_runs 随每次报表增长；保留最近 N 天，其余连同阶段明细级联删除。
// 约束：仅作用于 _report_runs/_report_stages；统计计数不回退。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	var dry bool
	var keepDays int
	cmd := &cobra.Command{
		Use:          "runs-prune",
		Short:        "Delete report run history older than the retention window",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := utils.OpenPostgresFromEnv()
			if err != nil {
				l.Error("db_open_error", "err", err)
				return err
			}
			defer db.Close()
			before := time.Now().AddDate(0, 0, -keepDays)
			n, err := store.AttachDB(db).PruneRuns(cmd.Context(), before, dry)
			if err != nil {
				l.Error("runs_prune_error", "err", err)
				return err
			}
			l.Info("runs_prune_done", "keep_days", keepDays, "before", before.Format(time.DateOnly), "runs", n, "dry_run", dry)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dry, "dry-run", false, "Only count runs that would be deleted")
	cmd.Flags().IntVar(&keepDays, "keep-days", store.KeepDaysFromEnv(), "Retention window in days (default: $RUNS_KEEP_DAYS or 90)")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
