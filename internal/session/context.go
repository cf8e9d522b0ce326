// 包 session：一个浏览器页面对应一个会话上下文，持有图例槽位、报表显示区和各类别当前地图图层
package session

import (
	"context"
	"fmt"
	"log/slog"
	"lrtp-viewer/internal/cql"
	"lrtp-viewer/internal/export"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/legend"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/search"
	"lrtp-viewer/internal/wfs"
	"sync"
	"time"
)

// Layer：某类别当前显示的地图图层，供前端设置 WMS 参数
type Layer struct {
	Item     string          `json:"item"`
	Category legend.Category `json:"category"`
	OLLayer  string          `json:"olLayer"`
	Layers   string          `json:"layers"`
	Style    string          `json:"style,omitempty"`
	Filter   string          `json:"filter,omitempty"`
}

// Deps：会话共享的只读依赖
type Deps struct {
	Catalog  *layers.Catalog
	Fetcher  report.Fetcher
	Recorder report.Recorder
	// GeoServer 根地址，图例取 <root>/wms，下载取 <root>/wfs
	Root string
}

// Context：页面会话
// 约束：图例与图层的修改在 mu 下串行；报表在后台 goroutine 中执行，新的报表使旧报表作废并取消其请求
type Context struct {
	ID      string
	Created time.Time

	cat     *layers.Catalog
	root    string
	search  *search.Searcher
	seq     *report.Sequencer
	exp     *export.Exporter
	legends *legend.Allocator
	board   *report.Board
	log     *slog.Logger

	base   context.Context
	stop   context.CancelFunc
	runs   sync.WaitGroup
	mu     sync.Mutex
	active map[legend.Category]Layer
	cancel context.CancelFunc
	used   time.Time
}

func newContext(parent context.Context, id string, d Deps) *Context {
	base, stop := context.WithCancel(parent)
	l := logger.Component("session").With("session", id)
	now := time.Now()
	return &Context{
		ID:      id,
		Created: now,
		cat:     d.Catalog,
		root:    d.Root,
		search:  search.New(d.Fetcher, d.Catalog),
		seq:     report.NewSequencer(d.Fetcher, d.Recorder),
		exp:     export.New(d.Catalog, d.Root),
		legends: legend.NewAllocator(l),
		board:   report.NewBoard(),
		log:     l,
		base:    base,
		stop:    stop,
		active:  make(map[legend.Category]Layer),
		used:    now,
	}
}

func (c *Context) touch() {
	c.mu.Lock()
	c.used = time.Now()
	c.mu.Unlock()
}

// LastUsed：最近一次操作时间
func (c *Context) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

func (c *Context) Board() *report.Board { return c.board }

func (c *Context) Legends() []legend.Slot { return c.legends.Slots() }

func (c *Context) Search() *search.Searcher { return c.search }

func (c *Context) Allocator() *legend.Allocator { return c.legends }

// Layers：当前显示的地图图层，按类别
func (c *Context) Layers() map[legend.Category]Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[legend.Category]Layer, len(c.active))
	for k, v := range c.active {
		out[k] = v
	}
	return out
}

// ShowLayer：切换某类别的地图图层
// 同类别旧图例先移除，再写入新图例；buses 只清空基础设施类别，选择线路后才有图例
func (c *Context) ShowLayer(key string) (Layer, error) {
	it, err := c.cat.Item(key)
	if err != nil {
		return Layer{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = time.Now()
	c.legends.Remove(it.Category)
	if header, content, ok := c.cat.LegendFor(it, c.root); ok {
		c.legends.Add(it.Category, header, content)
	}
	ly := Layer{
		Item:     it.Key,
		Category: it.Category,
		OLLayer:  it.OLLayer,
		Layers:   c.cat.TypeNames(it.Layers),
		Style:    it.SLD,
	}
	if it.NoLegend {
		ly.Filter = cql.BusRouteList()
	}
	c.active[it.Category] = ly
	c.log.Info("layer_show", "item", it.Key, "category", it.Category.String(), "slot", c.legends.SlotOf(it.Category))
	return ly, nil
}

// ClearLayer：隐藏类别图层并移除其图例；类别未显示时为空操作
func (c *Context) ClearLayer(cat legend.Category) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = time.Now()
	_, had := c.active[cat]
	delete(c.active, cat)
	removed := c.legends.Remove(cat)
	if had || removed {
		c.log.Info("layer_clear", "category", cat.String())
	}
	return had || removed
}

// ClearAll：清空五个类别
func (c *Context) ClearAll() {
	for _, cat := range legend.Categories {
		c.ClearLayer(cat)
	}
}

// BusRoute：已选公交线路及其范围
type BusRoute struct {
	search.Route
	Layer  Layer      `json:"layer"`
	Extent wfs.Extent `json:"extent"`
}

// ShowBusRoute：高亮一条公交线路，基础设施图例改为线路名
func (c *Context) ShowBusRoute(ctx context.Context, route string) (BusRoute, error) {
	r, ext, err := c.search.BusRoute(ctx, route)
	if err != nil {
		return BusRoute{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used = time.Now()
	ly := Layer{
		Item:     "buses",
		Category: legend.Infrastructure,
		OLLayer:  "oHighlightLayerBus",
		Layers:   c.cat.TypeName("bus_routes"),
		Filter:   cql.BusRoute(r.Route),
	}
	if it, err := c.cat.Item("buses"); err == nil {
		ly.OLLayer = it.OLLayer
	}
	c.legends.Remove(legend.Infrastructure)
	c.legends.Add(legend.Infrastructure, "MBTA Bus Route:", r.Route+" -- "+r.Name)
	c.active[legend.Infrastructure] = ly
	c.log.Info("bus_route_show", "route", r.Route, "name", r.Name)
	return BusRoute{Route: r, Layer: ly, Extent: ext}, nil
}

// StartReport：在后台启动流水线，返回本次运行的显示区代数
// 同一会话中正在进行的运行被作废：其令牌失效、未完成的请求被取消
func (c *Context) StartReport(kind string, crit report.Criterion) (uint64, error) {
	p, err := report.ByKind(kind, c.cat)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithCancel(c.base)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.used = time.Now()
	tk := c.board.Begin(kind, crit)
	c.mu.Unlock()

	gen := tk.Generation()
	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		defer cancel()
		res := c.seq.Run(ctx, p, crit, tk, tk)
		tk.Finish(res)
	}()
	return gen, nil
}

// StartCorridor：走廊报表；label 为下拉框中的显示名，用于表格标题，为空时用走廊缩写
func (c *Context) StartCorridor(name, label string) (uint64, error) {
	if name == "" {
		return 0, fmt.Errorf("corridor: %w", search.ErrNotFound)
	}
	return c.StartReport(report.KindCorridor, report.CorridorCriterion(name, label))
}

// StartRegionwide：全区报表，不带条件
func (c *Context) StartRegionwide() (uint64, error) {
	return c.StartReport(report.KindRegionwide, report.Criterion{Label: "Boston Region"})
}

// StartTown：先按名称定位城镇，再以城镇编号启动人口/就业/住户报表
func (c *Context) StartTown(ctx context.Context, name string) (search.Town, uint64, error) {
	t, err := c.search.Town(ctx, name)
	if err != nil {
		return search.Town{}, 0, err
	}
	gen, err := c.StartReport(report.KindTown, report.TownCriterion(t.ID, t.Name))
	return t, gen, err
}

// ClearReport：清空显示区并取消正在进行的运行
// 约束：与 StartReport 一样在 mu 下操作显示区，避免清空落在新运行的 Begin 之后
func (c *Context) ClearReport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.used = time.Now()
	c.board.Clear()
}

// Wait：等待已启动的运行全部结束
func (c *Context) Wait() { c.runs.Wait() }

// Highlight：地图高亮的 TAZ 与其在当前表格中的行
type Highlight struct {
	TAZ   search.TAZ `json:"taz"`
	Row   report.Row `json:"row,omitempty"`
	InRow bool       `json:"inTable"`
}

func (c *Context) highlight(z search.TAZ) Highlight {
	h := Highlight{TAZ: z}
	h.Row, h.InRow = c.board.FindRow("", "TAZ", z.ID)
	return h
}

// HighlightTAZ：按编号高亮；表格中没有该 TAZ 时只高亮地图
func (c *Context) HighlightTAZ(ctx context.Context, id int) (Highlight, error) {
	c.touch()
	z, err := c.search.TAZ(ctx, id)
	if err != nil {
		return Highlight{}, err
	}
	return c.highlight(z), nil
}

// HighlightAt：地图点击处的 TAZ
func (c *Context) HighlightAt(ctx context.Context, x, y, tol float64) (Highlight, error) {
	c.touch()
	z, err := c.search.TAZAt(ctx, x, y, tol)
	if err != nil {
		return Highlight{}, err
	}
	return c.highlight(z), nil
}

// ExportURL：当前显示内容下某页签的 CSV 下载地址
func (c *Context) ExportURL(tab string) (string, error) {
	kind, crit := c.board.Current()
	return c.exp.URL(tab, kind, crit)
}

// Close：取消进行中的运行
func (c *Context) Close() {
	c.stop()
}
