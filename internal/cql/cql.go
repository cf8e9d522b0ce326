// 包 cql：构造随 WFS 请求发送的 CQL 过滤条件；字符串字面量中的单引号加倍转义
package cql

import (
	"strconv"
	"strings"
)

const (
	CorridorRegion = "Region"
	CorridorCore   = "Core"
)

func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// ReportCorridor：走廊报表各阶段共用的过滤条件
// 约束：Core 为 BOS 与 CEN 两个环向走廊的并集，其余名称均按放射走廊匹配
func ReportCorridor(name string) string {
	if name == CorridorCore {
		return "(circumferential_corridor in ('BOS','CEN'))"
	}
	return "(plan2035_radial_corr=" + Quote(name) + ")"
}

func CorridorShape(name string) string {
	return "(corridor==" + Quote(name) + ")"
}

func CentralShape() string {
	return "(circumferential_corridor=='CEN')"
}

// TownName：城镇图层按大写名称匹配
func TownName(town string) string {
	return "(town==" + Quote(strings.ToUpper(strings.TrimSpace(town))) + ")"
}

func TownID(id int) string {
	return "(town_id==" + strconv.Itoa(id) + ")"
}

func TAZ(id int) string {
	return "(taz==" + strconv.Itoa(id) + ")"
}

// BusRoute：匹配线路的两个方向
func BusRoute(route string) string {
	return "(ctps_route==" + Quote(strings.TrimSpace(route)) + ")"
}

// BusRouteList：每条线路只取一个方向，用于列出线路
func BusRouteList() string {
	return "direction=0"
}

// PassengerDocks：码头下载使用的固定条件
func PassengerDocks() string {
	return "(passenger='Yes')AND(mpo='Boston Region')"
}
