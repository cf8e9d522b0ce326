package report

import (
	"fmt"
	"lrtp-viewer/internal/cql"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	KindCorridor   = "corridor"
	KindRegionwide = "regionwide"
	KindTown       = "town"
)

// TypeNamer：GeoServer 图层别名解析
type TypeNamer interface {
	TypeName(alias string) string
}

// CorridorCriterion：走廊报表条件；label 为空时使用走廊名
func CorridorCriterion(corridor, label string) Criterion {
	if label == "" {
		label = corridor
	}
	return Criterion{Filter: cql.ReportCorridor(corridor), Label: label}
}

// TownCriterion：城镇人口/就业/住户报表条件
// 图层中的城镇名为全大写，标签转为首字母大写后用于标题与 Town 列；导出时 cql.TownName 再转回大写
func TownCriterion(townID int, label string) Criterion {
	return Criterion{Filter: cql.TownID(townID), Label: TownProper(label)}
}

// TownProper：BOSTON、west boylston 之类转为 Boston、West Boylston
func TownProper(name string) string {
	return cases.Title(language.English).String(strings.TrimSpace(name))
}

func fixedCaption(s string) func(Criterion) string {
	return func(Criterion) string { return s }
}

// Corridor：走廊报表，五个阶段依次为事故、流量容量比、速度指数、行程时间指数、通勤铁路车站
func Corridor(tn TypeNamer) Pipeline {
	return Pipeline{Kind: KindCorridor, Stages: []Stage{
		{
			Name:       "crashes",
			Subject:    "crash data",
			TypeName:   tn.TypeName("crash_layer_poly"),
			Properties: []string{"crashcount", "epdo", "l1street", "l2street", "towns", "plan2035_radial_corr", "circumferential_corridor"},
			Sections: []SectionSpec{{
				ID:  "crash_grid",
				Tab: "Top 5% Crashes",
				Caption: func(c Criterion) string {
					return "Top 5 Percent Crashes for: " + c.Label + " Region, Ranked by EPDO Value"
				},
				Columns: []Column{{"EPDO Value", "EPDO"}, {"Town", "TOWN"}, {"Street 1", "STREET1"}, {"Street 2", "STREET2"}, {"Total Crashes", "TOTAL_CRASHES"}},
				SortKey: "EPDO",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{
						"EPDO":          num(p, "epdo"),
						"TOWN":          str(p, "towns"),
						"STREET1":       str(p, "l1street"),
						"STREET2":       str(p, "l2street"),
						"TOTAL_CRASHES": grouped(num(p, "crashcount")),
					}, true
				},
			}},
		},
		{
			Name:       "voc",
			Subject:    "VOC data",
			TypeName:   tn.TypeName("VOC_table"),
			Properties: []string{"data_key", "year", "plan2035_radial_corr", "roadway_type", "peak_period", "roadway", "voc"},
			Sections: []SectionSpec{{
				ID:  "VOC_grid",
				Tab: "Volume-to-Capacity Ratio",
				Caption: func(c Criterion) string {
					return "Highest Current Volume-Capacity Ratios for: " + c.Label + " Region"
				},
				Columns: []Column{{"Roadway", "ROADWAY"}, {"Road Type", "ROAD_TYPE"}, {"Peak Period", "PEAK_PERIOD"}, {"Volume/Capacity Ratio", "VOC"}},
				SortKey: "INDEX",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{
						"INDEX":       num(p, "data_key"),
						"YEAR":        str(p, "year"),
						"CORRIDOR":    str(p, "plan2035_radial_corr"),
						"ROAD_TYPE":   str(p, "roadway_type"),
						"PEAK_PERIOD": str(p, "peak_period"),
						"ROADWAY":     str(p, "roadway"),
						"VOC":         str(p, "voc"),
					}, true
				},
			}},
		},
		indexStage("speed_index", "speed index data", tn.TypeName("spd_idx_table"), "speedindex", "SPEEDINDEX",
			"spd_idx_grid", "Speed Index", "Speed Index", "Highest Speed Index Values for: "),
		indexStage("travel_time", "travel time index data", tn.TypeName("tt_table"), "traveltimeindex", "TRAVELTIMEINDEX",
			"tt_grid", "Travel Time Index", "Travel Time Index", "Highest Travel Time Index Values for: "),
		{
			Name:       "cr_stations",
			Subject:    "commuter rail station data",
			TypeName:   tn.TypeName("CR_stns"),
			Properties: []string{"station", "line_brnch", "plan2035_radial_corr"},
			Sections: []SectionSpec{{
				ID:  "CRStn_grid",
				Tab: "Commuter Rail Stations",
				Caption: func(c Criterion) string {
					return "Commuter Rail stations in : " + c.Label + " Region"
				},
				Columns: []Column{{"Station", "STATION"}, {"Line", "LINE_BRNCH"}},
				SortKey: "STATION",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{
						"STATION":         str(p, "station"),
						"LINE_BRNCH":      str(p, "line_brnch"),
						"RADIAL_CORRIDOR": str(p, "plan2035_radial_corr"),
					}, true
				},
			}},
		},
	}}
}

// indexStage：速度指数与行程时间指数两个阶段结构相同，仅指标列不同
func indexStage(name, subject, typeName, prop, field, id, tab, header, caption string) Stage {
	return Stage{
		Name:       name,
		Subject:    subject,
		TypeName:   typeName,
		Properties: []string{"year", "plan2035_radial_corr", "circumferential_corridor", "peakperiod", "route", "direction", "from_to", prop},
		Sections: []SectionSpec{{
			ID:  id,
			Tab: tab,
			Caption: func(c Criterion) string {
				return caption + c.Label + " Region"
			},
			Columns: []Column{{"Route", "ROUTE"}, {"From/To", "FROM_TO"}, {"Peak Period", "PEAKPERIOD"}, {"Direction", "DIRECTION"}, {header, field}},
			SortKey: "PEAKPERIOD",
			Row: func(p map[string]any, _ Criterion) (Row, bool) {
				return Row{
					"YEAR":            str(p, "year"),
					"PEAKPERIOD":      str(p, "peakperiod"),
					"ROUTE":           str(p, "route"),
					"DIRECTION":       str(p, "direction"),
					"FROM_TO":         str(p, "from_to"),
					field:             str(p, prop),
					"RADIAL_CORRIDOR": str(p, "plan2035_radial_corr"),
				}, true
			},
		}},
	}
}

// Regionwide：全区报表，机场、停车换乘场、客运码头、自行车道，均不带条件
// 约束：码头阶段先判空再按 mpo 与 passenger 过滤，过滤后为零行仍正常渲染
func Regionwide(tn TypeNamer) Pipeline {
	return Pipeline{Kind: KindRegionwide, Stages: []Stage{
		{
			Name:       "airports",
			Subject:    "airport data",
			TypeName:   tn.TypeName("airports"),
			Properties: []string{"town", "airport_name"},
			Unfiltered: true,
			Sections: []SectionSpec{{
				ID:      "airport_grid",
				Tab:     "Airports",
				Caption: fixedCaption("Airports in the Boston Region"),
				Columns: []Column{{"Town", "TOWN"}, {"Airport Name", "AIRPORT_NAME"}},
				SortKey: "TOWN",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{"TOWN": str(p, "town"), "AIRPORT_NAME": str(p, "airport_name")}, true
				},
			}},
		},
		{
			Name:       "park_ride",
			Subject:    "park-ride lot data",
			TypeName:   tn.TypeName("park_ride_lots"),
			Properties: []string{"town", "location", "capacity", "bus_servic"},
			Unfiltered: true,
			Sections: []SectionSpec{{
				ID:      "PRlots_grid",
				Tab:     "Park and Ride Lots",
				Caption: fixedCaption("MassDOT park-ride lots in the Boston Region"),
				Columns: []Column{{"Town", "TOWN"}, {"Location", "LOCATION"}, {"Capacity", "CAPACITY"}, {"Bus Service", "BUS_SERVICE"}},
				SortKey: "TOWN",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{
						"TOWN":        str(p, "town"),
						"LOCATION":    str(p, "location"),
						"CAPACITY":    str(p, "capacity"),
						"BUS_SERVICE": str(p, "bus_servic"),
					}, true
				},
			}},
		},
		{
			Name:       "boat_docks",
			Subject:    "boat dock data",
			TypeName:   tn.TypeName("seaports"),
			Properties: []string{"term_name", "passenger", "town", "service", "mpo"},
			Unfiltered: true,
			Sections: []SectionSpec{{
				ID:      "boatdocks_grid",
				Tab:     "Boat Docks",
				Caption: fixedCaption("Passenger boat/ferry docks in the Boston Region"),
				Columns: []Column{{"Terminal", "TERM_NAME"}, {"Town", "TOWN"}, {"Service", "SERVICE"}},
				SortKey: "TOWN",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					if str(p, "mpo") != "Boston Region" || str(p, "passenger") != "Yes" {
						return nil, false
					}
					return Row{"TERM_NAME": str(p, "term_name"), "TOWN": str(p, "town"), "SERVICE": str(p, "service")}, true
				},
			}},
		},
		{
			Name:       "bike_paths",
			Subject:    "bicycle path data",
			TypeName:   tn.TypeName("bikes_table"),
			Properties: []string{"local_name", "sum_len_miles"},
			Unfiltered: true,
			Sections: []SectionSpec{{
				ID:      "bikes_grid",
				Tab:     "Bicycle Paths",
				Caption: fixedCaption("Dedicated bike paths in the Boston Region"),
				Columns: []Column{{"Local name", "LOCALNAME"}, {"Approximate Length (miles)", "LENGTH"}},
				SortKey: "LOCALNAME",
				Row: func(p map[string]any, _ Criterion) (Row, bool) {
					return Row{"LOCALNAME": str(p, "local_name"), "LENGTH": round2(num(p, "sum_len_miles"))}, true
				},
			}},
		},
	}}
}

func townCaption(kind string) func(Criterion) string {
	return func(c Criterion) string {
		return kind + " data by TAZ for " + c.Label
	}
}

// Town：城镇 TAZ 报表，一次取数产出人口、就业、住户三张表
func Town(tn TypeNamer) Pipeline {
	return Pipeline{Kind: KindTown, Stages: []Stage{{
		Name:        "taz_demographics",
		Subject:     "TAZ demographic data",
		TypeName:    tn.TypeName("taz2727"),
		EmptyNotice: "No features found, possibly because town outside Plan area",
		Sections: []SectionSpec{
			{
				ID:      "pop_grid",
				Tab:     "Population",
				Caption: townCaption("Population"),
				Columns: []Column{
					{"TAZ", "TAZ"}, {"Town", "TOWN"}, {"Total Population 2010", "POP_2010"},
					{"Population per Square Mile 2010", "POP_PSQMI_2010"},
					{"Total Population Under Age 18", "POP_U18_2010"}, {"Percent of Population Under Age 18", "PCT_UNDER_18"},
					{"Total Population Over Age 75", "POP_75PLUS_2010"}, {"Percent of Population Over Age 75", "PCT_OVER_75"},
					{"Total Population Belonging to a Minority Group", "POP_MINORITY_2010"}, {"Percent of Population Belonging to a Minority Group", "PCT_MINORITY_2010"},
					{"Total Population with Limited English Proficiency", "POP_LEP_2010"}, {"Percent of Population with Limited English Proficiency", "PCT_LEP_2010"},
					{"Total Population with a Disability", "POP_DISABLED_2010"}, {"Percent of Population with a Disability", "PCT_DISABLED_2010"},
					{"Population per Square Mile 2040", "POP_PSQMI_2040"}, {"Population Density Change 2010-2040", "POP_PSQMI_CHANGE"},
				},
				SortKey: "TAZ",
				Row: func(p map[string]any, c Criterion) (Row, bool) {
					return Row{
						"TAZ":               num(p, "taz"),
						"TOWN":              c.Label,
						"POP_2010":          grouped(num(p, "total_pop_2010")),
						"POP_PSQMI_2010":    grouped(num(p, "pop_psqmi_2010")),
						"POP_U18_2010":      grouped(num(p, "total_pop_u18_2010")),
						"PCT_UNDER_18":      percent(num(p, "pop_u18_pct_2010")),
						"POP_75PLUS_2010":   grouped(num(p, "total_pop_75plus_2010")),
						"PCT_OVER_75":       percent(num(p, "pop_75plus_pct_2010")),
						"POP_MINORITY_2010": grouped(num(p, "total_minority_pop_2010")),
						"PCT_MINORITY_2010": percent(num(p, "minority_pop_pct_2010")),
						"POP_LEP_2010":      grouped(num(p, "total_lep_pop_2010")),
						"PCT_LEP_2010":      percent(num(p, "lep_pop_pct_2010")),
						"POP_DISABLED_2010": grouped(num(p, "total_disabled_pop_2010")),
						"PCT_DISABLED_2010": percent(num(p, "disabled_pop_pct_2010")),
						"POP_2040":          grouped(num(p, "total_pop_2040")),
						"POP_PSQMI_2040":    grouped(num(p, "pop_psqmi_2040")),
						"POP_PSQMI_CHANGE":  grouped(num(p, "pop_psqmi_change_2010_2040")),
					}, true
				},
			},
			{
				ID:      "emp_grid",
				Tab:     "Employment",
				Caption: townCaption("Employment"),
				Columns: []Column{
					{"TAZ", "TAZ"}, {"Town", "TOWN"}, {"Total Employment 2010", "EMP_2010"},
					{"Employment per Square Mile 2010", "EMP_PSQMI_2010"}, {"Total Employment 2040", "EMP_2040"},
					{"Employment per Square Mile 2040", "EMP_PSQMI_2040"}, {"Employment Density Change 2010-2040", "EMP_PSQMI_CHANGE"},
				},
				SortKey: "TAZ",
				Row: func(p map[string]any, c Criterion) (Row, bool) {
					return Row{
						"TAZ":              num(p, "taz"),
						"TOWN":             c.Label,
						"EMP_2010":         grouped(num(p, "total_emp_2010")),
						"EMP_PSQMI_2010":   grouped(num(p, "emp_sqmi_2010")),
						"EMP_2040":         grouped(num(p, "total_emp_2040")),
						"EMP_PSQMI_2040":   grouped(num(p, "emp_psqmi_2040")),
						"EMP_PSQMI_CHANGE": grouped(num(p, "emp_psqmi_change_2010_2040")),
					}, true
				},
			},
			{
				ID:      "hh_grid",
				Tab:     "Households",
				Caption: townCaption("Household"),
				Columns: []Column{
					{"TAZ", "TAZ"}, {"Town", "TOWN"}, {"Number of Households 2010", "NUM_HH_2010"},
					{"Households per Sq Mi 2010", "HH_PSQMI_2010"},
					{"Number of Low Income Households 2010", "HH_LOWINC_2010"}, {"Percent of Households with Low Income 2010", "PCT_HH_LOWINC_2010"},
					{"Number of Zero Vehicle Households 2010", "HH_ZV_2010"}, {"Percent of Households with Zero Vehicles 2010", "PCT_HH_ZV_2010"},
					{"Households per Sq Mi 2040", "HH_PSQMI_2040"}, {"Household Density Change 2010-2040", "HH_PSQMI_CHANGE"},
				},
				SortKey: "TAZ",
				Row: func(p map[string]any, c Criterion) (Row, bool) {
					return Row{
						"TAZ":                num(p, "taz"),
						"TOWN":               c.Label,
						"NUM_HH_2010":        grouped(num(p, "census_hh_2010")),
						"HH_PSQMI_2010":      grouped(num(p, "hh_psqmi_2010")),
						"HH_LOWINC_2010":     grouped(num(p, "total_lowinc_hh_2010")),
						"PCT_HH_LOWINC_2010": percent(num(p, "lowinc_hh_pct_2010")),
						"HH_ZV_2010":         grouped(num(p, "total_zero_veh_hh_2010")),
						"PCT_HH_ZV_2010":     percent(num(p, "zero_veh_hh_pct_2010")),
						"HH_PSQMI_2040":      grouped(num(p, "hh_psqmi_2040")),
						"HH_PSQMI_CHANGE":    grouped(num(p, "hh_psqmi_change_2010_2040")),
					}, true
				},
			},
		},
	}}}
}

// ByKind：按类型取流水线
func ByKind(kind string, tn TypeNamer) (Pipeline, error) {
	switch kind {
	case KindCorridor:
		return Corridor(tn), nil
	case KindRegionwide:
		return Regionwide(tn), nil
	case KindTown:
		return Town(tn), nil
	}
	return Pipeline{}, fmt.Errorf("unknown report kind %q", kind)
}
