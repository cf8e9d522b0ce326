// 包 wfs：GeoServer WFS/WMS 访问。负责请求地址拼装、GeoJSON 解析、Redis 响应缓存与上游心跳
package wfs

import (
	"net/url"
	"strings"
)

// Query：一次 GetFeature 请求的参数
// Filter 为空时不带 cql_filter；Properties 为空时返回全部属性
// BBox 为 "minx,miny,maxx,maxy,EPSG:26986" 形式，与 Filter 不同时使用
type Query struct {
	TypeName   string
	Filter     string
	Properties []string
	BBox       string
}

func appendParam(b *strings.Builder, k, v string) {
	if b.Len() > 0 {
		b.WriteByte('&')
	}
	b.WriteString(k)
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(v))
}

func join(root, endpoint string) string {
	return strings.TrimRight(root, "/") + "/" + endpoint
}

// FeatureURL：GeoJSON 输出的 GetFeature 地址
func FeatureURL(root string, q Query) string {
	var b strings.Builder
	appendParam(&b, "service", "wfs")
	appendParam(&b, "version", "1.0.0")
	appendParam(&b, "request", "getfeature")
	appendParam(&b, "typename", q.TypeName)
	appendParam(&b, "outputformat", "json")
	if q.Filter != "" {
		appendParam(&b, "cql_filter", q.Filter)
	} else if q.BBox != "" {
		appendParam(&b, "bbox", q.BBox)
	}
	if len(q.Properties) > 0 {
		appendParam(&b, "propertyname", strings.Join(q.Properties, ","))
	}
	return join(root, "wfs") + "?" + b.String()
}

// CSVURL：CSV 下载地址，参数名大小写与浏览器端下载链接保持一致
func CSVURL(root string, q Query) string {
	var b strings.Builder
	appendParam(&b, "request", "getfeature")
	appendParam(&b, "version", "1.0.0")
	appendParam(&b, "service", "wfs")
	appendParam(&b, "typename", q.TypeName)
	appendParam(&b, "outputFormat", "csv")
	if q.Filter != "" {
		appendParam(&b, "CQL_filter", q.Filter)
	}
	appendParam(&b, "propertyName", strings.Join(q.Properties, ","))
	return join(root, "wfs") + "?" + b.String()
}

// LegendGraphicURL：WMS GetLegendGraphic 地址，20x20 PNG
func LegendGraphicURL(root, layer, style string) string {
	var b strings.Builder
	appendParam(&b, "request", "getlegendgraphic")
	appendParam(&b, "version", "1.0.0")
	appendParam(&b, "format", "image/png")
	appendParam(&b, "width", "20")
	appendParam(&b, "height", "20")
	appendParam(&b, "layer", layer)
	appendParam(&b, "style", style)
	return join(root, "wms") + "?" + b.String()
}

// LegendImage：图例内容，包一层 img 标签
func LegendImage(root, layer, style string) string {
	return "<img src='" + LegendGraphicURL(root, layer, style) + "'></img>"
}

func capabilitiesURL(root string) string {
	return join(root, "wfs") + "?service=wfs&version=1.0.0&request=getcapabilities"
}
