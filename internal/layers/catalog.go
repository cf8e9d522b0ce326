// 包 layers：图层目录。GeoServer 图层别名、可选地图图层及其图例来源、手绘图例与 CSV 下载表均来自内嵌 catalog.yaml
package layers

import (
	_ "embed"
	"errors"
	"fmt"
	"lrtp-viewer/internal/legend"
	"lrtp-viewer/internal/wfs"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultYAML []byte

var (
	ErrUnknownItem = errors.New("unknown map layer")
	ErrUnknownTab  = errors.New("unknown download tab")
)

// LegendSource：图例取自与显示图层不同的图层/样式时使用
type LegendSource struct {
	Layer string `yaml:"layer"`
	Style string `yaml:"style"`
}

// Item：一个可选地图图层
type Item struct {
	Key          string        `yaml:"key" json:"key"`
	CategoryName string        `yaml:"category" json:"-"`
	SLD          string        `yaml:"sld" json:"sld"`
	Header       string        `yaml:"header" json:"header"`
	Layers       []string      `yaml:"layers" json:"layers"`
	OLLayer      string        `yaml:"ol_layer" json:"olLayer"`
	Legend       *LegendSource `yaml:"legend" json:"-"`
	NoLegend     bool          `yaml:"no_legend" json:"noLegend,omitempty"`

	Category legend.Category `yaml:"-" json:"category"`
}

// Filter kinds of a download entry.
const (
	FilterNone      = ""
	FilterTown      = "town"
	FilterCriterion = "criterion"
	FilterDocks     = "docks"
)

// Download：报表页签对应的 CSV 下载定义
type Download struct {
	Tab        string   `yaml:"tab" json:"tab"`
	Layer      string   `yaml:"layer" json:"layer"`
	Filter     string   `yaml:"filter" json:"filter,omitempty"`
	Properties []string `yaml:"properties" json:"properties"`
}

type document struct {
	GSLayers      map[string]string `yaml:"gs_layers"`
	CustomLegends map[string]string `yaml:"custom_legends"`
	Items         []Item            `yaml:"items"`
	Downloads     []Download        `yaml:"downloads"`
}

// Catalog：只读图层目录，可被多个会话共享
type Catalog struct {
	gs     map[string]string
	custom map[string]string
	items  []Item
	byKey  map[string]int
	dls    []Download
	byTab  map[string]int
}

// Load：解析并校验目录；所有别名必须可解析，类别必须合法，key 与 tab 不得重复
func Load(b []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{
		gs:     doc.GSLayers,
		custom: doc.CustomLegends,
		byKey:  make(map[string]int, len(doc.Items)),
		byTab:  make(map[string]int, len(doc.Downloads)),
	}
	if c.custom == nil {
		c.custom = map[string]string{}
	}
	for i := range doc.Items {
		it := doc.Items[i]
		cat, err := legend.ParseCategory(it.CategoryName)
		if err != nil {
			return nil, fmt.Errorf("item %q: %w", it.Key, err)
		}
		it.Category = cat
		if _, dup := c.byKey[it.Key]; dup {
			return nil, fmt.Errorf("duplicate item %q", it.Key)
		}
		for _, a := range it.Layers {
			if _, ok := c.gs[a]; !ok {
				return nil, fmt.Errorf("item %q: unknown layer alias %q", it.Key, a)
			}
		}
		if it.Legend != nil {
			if _, ok := c.gs[it.Legend.Layer]; !ok {
				return nil, fmt.Errorf("item %q: unknown legend layer alias %q", it.Key, it.Legend.Layer)
			}
		}
		c.byKey[it.Key] = len(c.items)
		c.items = append(c.items, it)
	}
	for _, d := range doc.Downloads {
		if _, ok := c.gs[d.Layer]; !ok {
			return nil, fmt.Errorf("download %q: unknown layer alias %q", d.Tab, d.Layer)
		}
		switch d.Filter {
		case FilterNone, FilterTown, FilterCriterion, FilterDocks:
		default:
			return nil, fmt.Errorf("download %q: unknown filter kind %q", d.Tab, d.Filter)
		}
		if _, dup := c.byTab[d.Tab]; dup {
			return nil, fmt.Errorf("duplicate download tab %q", d.Tab)
		}
		c.byTab[d.Tab] = len(c.dls)
		c.dls = append(c.dls, d)
	}
	return c, nil
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) { return Load(defaultYAML) })

// Default：内嵌目录，进程内只解析一次
func Default() (*Catalog, error) { return loadDefault() }

// TypeName：别名对应的 GeoServer 图层名；未知别名原样返回
func (c *Catalog) TypeName(alias string) string {
	if t, ok := c.gs[alias]; ok {
		return t
	}
	return alias
}

// TypeNames：多个别名拼成逗号分隔的图层列表
func (c *Catalog) TypeNames(aliases []string) string {
	out := make([]string, len(aliases))
	for i, a := range aliases {
		out[i] = c.TypeName(a)
	}
	return strings.Join(out, ",")
}

func (c *Catalog) Item(key string) (Item, error) {
	i, ok := c.byKey[key]
	if !ok {
		return Item{}, fmt.Errorf("%w: %q", ErrUnknownItem, key)
	}
	return c.items[i], nil
}

// Items：指定类别的图层；cat 为 0 时返回全部
func (c *Catalog) Items(cat legend.Category) []Item {
	var out []Item
	for _, it := range c.items {
		if cat == 0 || it.Category == cat {
			out = append(out, it)
		}
	}
	return out
}

func (c *Catalog) Download(tab string) (Download, error) {
	i, ok := c.byTab[tab]
	if !ok {
		return Download{}, fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	return c.dls[i], nil
}

// Tabs：全部下载页签名，按字母序
func (c *Catalog) Tabs() []string {
	out := make([]string, 0, len(c.dls))
	for _, d := range c.dls {
		out = append(out, d.Tab)
	}
	sort.Strings(out)
	return out
}

// LegendFor：图层显示时写入图例槽位的表头与内容
// 约束：手绘图例优先；人口类表头原样使用，其余类别表头追加换行；NoLegend 图层返回 ok=false
func (c *Catalog) LegendFor(it Item, wmsRoot string) (header, content string, ok bool) {
	if it.NoLegend {
		return "", "", false
	}
	header = it.Header
	if it.Category != legend.Demographic {
		header += "<br/>"
	}
	if html, custom := c.custom[it.Key]; custom {
		return header, html, true
	}
	layer, style := c.TypeNames(it.Layers), it.SLD
	if it.Legend != nil {
		layer = c.TypeName(it.Legend.Layer)
		if it.Legend.Style != "" {
			style = it.Legend.Style
		}
	}
	return header, wfs.LegendImage(wmsRoot, layer, style), true
}
