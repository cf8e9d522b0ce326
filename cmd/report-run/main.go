// report-run：命令行运行报表流水线，结果以表格输出到 stdout
package main

import (
	"context"
	"fmt"
	"io"
	"lrtp-viewer/internal/export"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/search"
	"lrtp-viewer/internal/store"
	"lrtp-viewer/internal/utils"
	"lrtp-viewer/internal/wfs"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	geoserver string
	timeout   time.Duration
	record    bool
	townName  string
	corrName  string
	corrLabel string
)

// env：一次命令执行所需的依赖
type env struct {
	cat *layers.Catalog
	wc  *wfs.Client
	s   *search.Searcher
	rec report.Recorder
}

func setup() (*env, error) {
	cat, err := layers.Default()
	if err != nil {
		return nil, err
	}
	if geoserver != "" {
		_ = os.Setenv("GEOSERVER_ROOT", geoserver)
	}
	wc := wfs.NewClientFromEnv(nil)
	e := &env{cat: cat, wc: wc, s: search.New(wc, cat)}
	if record {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		e.rec = store.AttachDB(db)
	}
	return e, nil
}

func main() {
	_ = godotenv.Load(".env")
	logger.Setup()

	rootCmd := &cobra.Command{
		Use:          "report-run",
		Short:        "Run LRTP viewer reports against GeoServer",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&geoserver, "geoserver", "", "GeoServer root (default: $GEOSERVER_ROOT)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	rootCmd.PersistentFlags().BoolVar(&record, "record", false, "Persist the run to Postgres")

	corridorCmd := &cobra.Command{
		Use:   "corridor [name]",
		Short: "Corridor report (Region, Core or a named corridor)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, report.KindCorridor, args[0])
		},
	}
	corridorCmd.Flags().StringVar(&corrLabel, "label", "", "Display name used in table captions (default: the corridor name)")
	rootCmd.AddCommand(corridorCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "regionwide",
		Short: "Regionwide infrastructure report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, report.KindRegionwide, "")
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "town [name]",
		Short: "Town demographics report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKind(cmd, report.KindTown, args[0])
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "List MBTA bus routes",
		Args:  cobra.NoArgs,
		RunE:  runRoutes,
	})
	exportCmd := &cobra.Command{
		Use:   "export-url [tab]",
		Short: "Print the CSV download URL for a data tab",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVar(&townName, "town", "", "Town label for town tabs")
	exportCmd.Flags().StringVar(&corrName, "corridor", "", "Corridor for corridor tabs")
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// criterion：按类型解析名称得到条件；town 需要先查询编号
func criterion(ctx context.Context, e *env, kind, name string) (report.Criterion, error) {
	switch kind {
	case report.KindCorridor:
		c, err := e.s.Corridor(ctx, name)
		if err != nil {
			return report.Criterion{}, fmt.Errorf("corridor %q: %w", name, err)
		}
		return report.CorridorCriterion(c.Name, corrLabel), nil
	case report.KindTown:
		t, err := e.s.Town(ctx, name)
		if err != nil {
			return report.Criterion{}, fmt.Errorf("town %q: %w", name, err)
		}
		return report.TownCriterion(t.ID, t.Name), nil
	default:
		return report.Criterion{Label: "Boston Region"}, nil
	}
}

func runKind(cmd *cobra.Command, kind, name string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	e, err := setup()
	if err != nil {
		return err
	}
	p, err := report.ByKind(kind, e.cat)
	if err != nil {
		return err
	}
	c, err := criterion(ctx, e, kind, name)
	if err != nil {
		return err
	}
	out := &tableDisplay{w: cmd.OutOrStdout()}
	res := report.NewSequencer(e.wc, e.rec).Run(ctx, p, c, out, never{})
	fmt.Fprintf(cmd.OutOrStdout(), "outcome: %s", res.Outcome)
	if h := res.HaltedAt(); h != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (halted at %s)", h)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	if res.Outcome == report.OutcomeFailed {
		return fmt.Errorf("report %s failed", kind)
	}
	return nil
}

func runRoutes(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	e, err := setup()
	if err != nil {
		return err
	}
	routes, err := e.s.BusRoutes(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROUTE\tNAME")
	for _, r := range routes {
		fmt.Fprintf(tw, "%s\t%s\n", r.Route, r.Name)
	}
	return tw.Flush()
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	e, err := setup()
	if err != nil {
		return err
	}
	kind, name := report.KindRegionwide, ""
	switch {
	case townName != "":
		kind, name = report.KindTown, townName
	case corrName != "":
		kind, name = report.KindCorridor, corrName
	}
	var c report.Criterion
	switch kind {
	case report.KindTown:
		// 导出按名称过滤，无需查询编号
		c = report.Criterion{Label: name}
	case report.KindCorridor:
		if c, err = criterion(ctx, e, kind, name); err != nil {
			return err
		}
	}
	u, err := export.New(e.cat, e.wc.Root()).URL(args[0], kind, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), u)
	return nil
}

type never struct{}

func (never) Superseded() bool { return false }

// tableDisplay：每张表一个 tabwriter 块，提示信息直接输出
type tableDisplay struct {
	w io.Writer
}

func (d *tableDisplay) Render(s report.Section) {
	fmt.Fprintf(d.w, "\n== %s [%s]\n", s.Caption, s.Tab)
	tw := tabwriter.NewWriter(d.w, 0, 4, 2, ' ', 0)
	hdr := make([]string, len(s.Columns))
	for i, col := range s.Columns {
		hdr[i] = col.Header
	}
	fmt.Fprintln(tw, strings.Join(hdr, "\t"))
	for _, r := range s.Rows {
		cells := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			cells[i] = cell(r[col.Field])
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
}

func (d *tableDisplay) Notify(n report.Notice) {
	fmt.Fprintf(d.w, "\n!! [%s] %s\n", n.Stage, n.Text)
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
