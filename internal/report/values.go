package report

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// num：属性转数值，缺失或非法为 0
func num(p map[string]any, k string) float64 {
	f, _ := toFloat(p[k])
	return f
}

// str：属性转文本，缺失为空串
func str(p map[string]any, k string) string {
	switch x := p[k].(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// grouped：四舍五入为整数并加千分位
func grouped(f float64) string {
	return printer.Sprintf("%d", int64(math.Round(f)))
}

// percent：比例值转百分数，保留一位小数
func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64)
}

// round2：保留两位小数的数值
func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// compareValues：两侧都是数值时按数值比较，否则按文本比较；数值排在文本之前
func compareValues(a, b any) int {
	fa, oka := numeric(a)
	fb, okb := numeric(b)
	switch {
	case oka && okb:
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case oka:
		return -1
	case okb:
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// numeric：只认真正的数值类型，字符串列按文本排序
func numeric(v any) (float64, bool) {
	if _, isStr := v.(string); isStr || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// SortRows：按键稳定升序；key 为空时保持原顺序
func SortRows(rows []Row, key string) {
	if key == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareValues(rows[i][key], rows[j][key]) < 0
	})
}

// sameValue：精确匹配，数值按数值相等、文本按全等
func sameValue(a, b any) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		return fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
