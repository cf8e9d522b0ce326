// 包 export：报表页签对应的 GeoServer CSV 下载地址
package export

import (
	"errors"
	"fmt"
	"lrtp-viewer/internal/cql"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/wfs"
)

// ErrNoCriterion：页签需要的城镇或走廊条件在当前显示内容中不存在
var ErrNoCriterion = errors.New("tab needs a criterion that is not on display")

type Exporter struct {
	cat  *layers.Catalog
	root string
}

func New(cat *layers.Catalog, root string) *Exporter {
	return &Exporter{cat: cat, root: root}
}

// URL：生成 CSV 下载地址
// kind 与 c 为当前显示区的流水线类型与条件：城镇页签按城镇名过滤，走廊页签沿用报表条件，码头页签固定条件
func (e *Exporter) URL(tab, kind string, c report.Criterion) (string, error) {
	d, err := e.cat.Download(tab)
	if err != nil {
		return "", err
	}
	q := wfs.Query{TypeName: e.cat.TypeName(d.Layer), Properties: d.Properties}
	switch d.Filter {
	case layers.FilterTown:
		if kind != report.KindTown || c.Label == "" {
			return "", fmt.Errorf("%s: %w", tab, ErrNoCriterion)
		}
		q.Filter = cql.TownName(c.Label)
	case layers.FilterCriterion:
		if kind != report.KindCorridor || c.Filter == "" {
			return "", fmt.Errorf("%s: %w", tab, ErrNoCriterion)
		}
		q.Filter = c.Filter
	case layers.FilterDocks:
		q.Filter = cql.PassengerDocks()
	}
	return wfs.CSVURL(e.root, q), nil
}
