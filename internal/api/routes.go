// 包 api：集中注册 HTTP API 路由以解耦主入口，主入口挂载到 {API_BASE} 前缀
package api

import (
	"context"
	"encoding/json"
	"errors"
	"lrtp-viewer/internal/export"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/legend"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"lrtp-viewer/internal/report"
	"lrtp-viewer/internal/search"
	"lrtp-viewer/internal/session"
	"lrtp-viewer/internal/store"
	"lrtp-viewer/internal/wfs"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deps：路由依赖；Store、Redis、Monitor 可为 nil
type Deps struct {
	Sessions *session.Manager
	Catalog  *layers.Catalog
	Search   *search.Searcher
	Store    *store.Store
	Redis    *redis.Client
	Monitor  *wfs.Monitor
	// ReportLimit：报表启动接口的限流包装，可为 nil
	ReportLimit func(http.Handler) http.Handler
}

const busRoutesKey = "api:bus-routes"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr：错误到状态码的映射，上游失败为 502
func writeErr(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var fe *wfs.FetchError
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, search.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, layers.ErrUnknownItem), errors.Is(err, layers.ErrUnknownTab):
		code = http.StatusBadRequest
	case errors.Is(err, search.ErrAmbiguous), errors.Is(err, export.ErrNoCriterion):
		code = http.StatusConflict
	case errors.As(err, &fe):
		code = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		code = http.StatusGatewayTimeout
	}
	if code >= 500 {
		logger.L().Error("api_error", "code", code, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

type codeWriter struct {
	http.ResponseWriter
	code int
}

func (w *codeWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// BuildRoutes：构建并返回 API 路由
func BuildRoutes(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &codeWriter{ResponseWriter: w, code: http.StatusOK}
			h(cw, r)
			metrics.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(cw.code/100)+"xx").Inc()
		}))
	}
	withSession := func(h func(http.ResponseWriter, *http.Request, *session.Context)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sc, err := d.Sessions.Get(r.PathValue("id"))
			if err != nil {
				writeErr(w, err)
				return
			}
			h(w, r, sc)
		}
	}

	// 会话
	handle("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
		sc := d.Sessions.Create()
		if d.Store != nil {
			first := firstVisitToday(r.Context(), d.Redis, logger.ClientIP(r), time.Now())
			if err := d.Store.IncrStats(r.Context(), first); err != nil {
				logger.L().Warn("session_stats_error", "session", sc.ID, "err", err)
			}
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": sc.ID, "created": sc.Created})
	})
	handle("DELETE /sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if !d.Sessions.Delete(r.PathValue("id")) {
			writeErr(w, session.ErrNoSession)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// 图例与图层
	handle("GET /sessions/{id}/legends", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		writeJSON(w, http.StatusOK, map[string]any{
			"slots":    sc.Legends(),
			"registry": sc.Allocator().Registry(),
			"max":      legend.MaxSlots,
		})
	}))
	handle("GET /sessions/{id}/layers", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		writeJSON(w, http.StatusOK, sc.Layers())
	}))
	handle("POST /sessions/{id}/layers/{item}", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		ly, err := sc.ShowLayer(r.PathValue("item"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"layer": ly, "slots": sc.Legends()})
	}))
	handle("DELETE /sessions/{id}/layers/{category}", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		name := r.PathValue("category")
		if name == "all" {
			sc.ClearAll()
			writeJSON(w, http.StatusOK, map[string]any{"slots": sc.Legends()})
			return
		}
		cat, err := legend.ParseCategory(name)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		removed := sc.ClearLayer(cat)
		writeJSON(w, http.StatusOK, map[string]any{"removed": removed, "slots": sc.Legends()})
	}))
	handle("POST /sessions/{id}/bus-route", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		br, err := sc.ShowBusRoute(r.Context(), r.URL.Query().Get("route"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"route": br, "slots": sc.Legends()})
	}))

	// 报表
	start := withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		name := r.URL.Query().Get("name")
		var gen uint64
		var err error
		resp := map[string]any{}
		switch kind := r.PathValue("kind"); kind {
		case report.KindCorridor:
			if name == "" {
				badRequest(w, "missing corridor name")
				return
			}
			gen, err = sc.StartCorridor(name, r.URL.Query().Get("label"))
		case report.KindRegionwide:
			gen, err = sc.StartRegionwide()
		case report.KindTown:
			if name == "" {
				badRequest(w, "missing town name")
				return
			}
			var t search.Town
			t, gen, err = sc.StartTown(r.Context(), name)
			resp["town"] = t
		default:
			badRequest(w, "unknown report kind")
			return
		}
		if err != nil {
			writeErr(w, err)
			return
		}
		resp["generation"] = gen
		writeJSON(w, http.StatusAccepted, resp)
	})
	if d.ReportLimit != nil {
		lim := d.ReportLimit(start)
		handle("POST /sessions/{id}/reports/{kind}", lim.ServeHTTP)
	} else {
		handle("POST /sessions/{id}/reports/{kind}", start)
	}
	handle("GET /sessions/{id}/report", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		writeJSON(w, http.StatusOK, sc.Board().Snapshot())
	}))
	handle("DELETE /sessions/{id}/report", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		sc.ClearReport()
		w.WriteHeader(http.StatusNoContent)
	}))
	handle("GET /sessions/{id}/export", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		u, err := sc.ExportURL(r.URL.Query().Get("tab"))
		if err != nil {
			writeErr(w, err)
			return
		}
		http.Redirect(w, r, u, http.StatusFound)
	}))
	handle("GET /sessions/{id}/taz/{taz}", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		id, err := strconv.Atoi(r.PathValue("taz"))
		if err != nil {
			badRequest(w, "bad taz id")
			return
		}
		h, err := sc.HighlightTAZ(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}))
	handle("GET /sessions/{id}/identify", withSession(func(w http.ResponseWriter, r *http.Request, sc *session.Context) {
		q := r.URL.Query()
		x, ex := strconv.ParseFloat(q.Get("x"), 64)
		y, ey := strconv.ParseFloat(q.Get("y"), 64)
		if ex != nil || ey != nil {
			badRequest(w, "bad coordinates")
			return
		}
		tol, _ := strconv.ParseFloat(q.Get("tol"), 64)
		h, err := sc.HighlightAt(r.Context(), x, y, tol)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h)
	}))

	// 检索
	handle("GET /towns/{name}", func(w http.ResponseWriter, r *http.Request) {
		t, err := d.Search.Town(r.Context(), r.PathValue("name"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	})
	handle("GET /corridors/{name}", func(w http.ResponseWriter, r *http.Request) {
		c, err := d.Search.Corridor(r.Context(), r.PathValue("name"))
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	})
	handle("GET /bus-routes", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if d.Redis != nil {
			if s, _ := d.Redis.Get(ctx, busRoutesKey).Result(); s != "" {
				var cached []search.Route
				if json.Unmarshal([]byte(s), &cached) == nil {
					writeJSON(w, http.StatusOK, cached)
					return
				}
			}
		}
		rs, err := d.Search.BusRoutes(ctx)
		if err != nil {
			writeErr(w, err)
			return
		}
		if d.Redis != nil && len(rs) > 0 {
			b, _ := json.Marshal(rs)
			d.Redis.Set(ctx, busRoutesKey, string(b), time.Hour)
		}
		writeJSON(w, http.StatusOK, rs)
	})
	handle("GET /taz/{taz}", func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(r.PathValue("taz"))
		if err != nil {
			badRequest(w, "bad taz id")
			return
		}
		z, err := d.Search.TAZ(r.Context(), id)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, z)
	})

	// 目录、历史与状态
	handle("GET /catalog", func(w http.ResponseWriter, r *http.Request) {
		var cat legend.Category
		if s := r.URL.Query().Get("category"); s != "" {
			c, err := legend.ParseCategory(s)
			if err != nil {
				badRequest(w, err.Error())
				return
			}
			cat = c
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"categories": legend.Categories,
			"items":      d.Catalog.Items(cat),
			"tabs":       d.Catalog.Tabs(),
		})
	})
	handle("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history disabled"})
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := d.Store.RecentRuns(r.Context(), r.URL.Query().Get("kind"), limit)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})
	handle("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"sessions": d.Sessions.Len()}
		if d.Store != nil {
			t, err := d.Store.GetTotals(r.Context())
			if err != nil {
				logger.L().Warn("stats_totals_error", "err", err)
			} else {
				out["totals"] = t
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
	handle("GET /health", func(w http.ResponseWriter, r *http.Request) {
		h := wfs.Health{Healthy: true}
		if d.Monitor != nil {
			h = d.Monitor.Status()
		}
		code := http.StatusOK
		if !h.Healthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"geoserver": h, "sessions": d.Sessions.Len()})
	})

	return mux
}
