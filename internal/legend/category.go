// 包 legend：地图图例槽位分配。五个固定槽位，每个图层类别最多占用一个，已占用槽位始终是从 1 开始的连续前缀
package legend

import (
	"fmt"
	"strings"
)

// Category：图层类别，闭集
type Category int

const (
	Demographic Category = iota + 1
	Infrastructure
	Crash
	VOC
	Truck
)

// Categories：全部类别，顺序固定
var Categories = []Category{Demographic, Infrastructure, Crash, VOC, Truck}

type categoryMeta struct {
	name  string
	width int
}

var meta = map[Category]categoryMeta{
	Demographic:    {name: "demographic", width: 250},
	Infrastructure: {name: "infrastructure", width: 210},
	Crash:          {name: "crash", width: 180},
	VOC:            {name: "voc", width: 180},
	Truck:          {name: "truck", width: 180},
}

func (c Category) Valid() bool {
	_, ok := meta[c]
	return ok
}

func (c Category) String() string {
	if m, ok := meta[c]; ok {
		return m.name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Width：该类别图例的建议像素宽度
func (c Category) Width() int { return meta[c].width }

// ParseCategory：按名称解析，大小写不敏感
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if meta[c].name == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown legend category %q", s)
}

func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid legend category %d", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
