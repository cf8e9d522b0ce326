// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"lrtp-viewer/internal/api"
	"lrtp-viewer/internal/layers"
	"lrtp-viewer/internal/logger"
	"lrtp-viewer/internal/metrics"
	"lrtp-viewer/internal/middleware"
	"lrtp-viewer/internal/migrate"
	"lrtp-viewer/internal/search"
	"lrtp-viewer/internal/session"
	"lrtp-viewer/internal/store"
	"lrtp-viewer/internal/utils"
	"lrtp-viewer/internal/version"
	"lrtp-viewer/internal/wfs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Info("startup", "commit", version.Commit)
	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api"
	}
	l.Debug("config_api_base", "base", apiBase)
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 运行历史为可选能力：数据库不可用时报表照常运行，仅不落库
	var st *store.Store
	if utils.PostgresEnabled() {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
			if err := migrate.EnsureSchema(db); err != nil {
				l.Error("schema_error", "err", err)
				os.Exit(1)
			}
			st = store.AttachDB(db)
			if os.Getenv("RUNS_RETENTION_ENABLE") != "false" {
				st.StartWeeklyRetention(ctx)
			}
		}
	} else {
		l.Info("db_disabled")
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
		defer rc.Close()
	}

	cat, err := layers.Default()
	if err != nil {
		l.Error("catalog_load_error", "err", err)
		os.Exit(1)
	}
	l.Info("catalog_ready", "items", len(cat.Items(0)), "tabs", len(cat.Tabs()))

	wc := wfs.NewClientFromEnv(rc)
	interval := 30 * time.Second
	if v, err := time.ParseDuration(os.Getenv("HEALTH_INTERVAL")); err == nil && v > 0 {
		interval = v
	}
	mon := wfs.NewMonitor(wc, interval)
	mon.Start(ctx)

	deps := session.Deps{Catalog: cat, Fetcher: wc, Root: wc.Root()}
	// 约束：st 为 nil 时不能装入接口，否则 Recorder 非 nil 而调用时空指针
	if st != nil {
		deps.Recorder = st
	}
	capacity, idle := session.CapacityFromEnv()
	mgr, err := session.NewManager(ctx, deps, capacity, idle)
	if err != nil {
		l.Error("session_manager_error", "err", err)
		os.Exit(1)
	}
	defer mgr.CloseAll()
	mgr.StartSweeper(ctx, time.Minute)
	l.Info("sessions_ready", "capacity", capacity, "idle", idle.String())

	apiMux := api.BuildRoutes(api.Deps{
		Sessions:    mgr,
		Catalog:     cat,
		Search:      search.New(wc, cat),
		Store:       st,
		Redis:       rc,
		Monitor:     mon,
		ReportLimit: middleware.ReportLimiter(),
	})
	mux := http.NewServeMux()
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())
	mux.Handle("/", http.FileServer(http.Dir(ui)))

	// NOTE: 向前端暴露 API 基础路径与 GeoServer 地址，避免硬编码
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'\n"))
		_, _ = w.Write([]byte("window.__GEOSERVER_ROOT__='" + wc.Root() + "'\n"))
		_, _ = w.Write([]byte("window.__WMS_URL__='" + wc.Root() + "/wms'\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'"))
	})

	geo, err := logger.OpenGeoIPFromEnv()
	if err != nil {
		l.Error("geoip_open_error", "err", err)
	}
	var lookup logger.CountryLookup
	if geo != nil {
		lookup = geo
		defer geo.Close()
	}

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l, lookup)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		l.Info("shutdown_begin")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	tlsEnable := os.Getenv("TLS_ENABLE")
	if tlsEnable == "" || tlsEnable == "true" {
		certPath, keyPath := utils.TLSPathsFromEnv()
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "lrtp-viewer.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
		}
		// 可选：启动HTTP重定向到HTTPS（不改变HTTPS运行端口）
		if os.Getenv("TLS_REDIRECT_ENABLE") == "true" {
			redirAddr := os.Getenv("TLS_REDIRECT_ADDR")
			if redirAddr == "" {
				redirAddr = ":80"
			}
			go func() {
				l.Info("http_redirect_listening", "addr", redirAddr, "to", "https"+addr)
				_ = http.ListenAndServe(redirAddr, logger.AccessMiddleware(l, nil)(redirectHandler(addr)))
			}()
		}
		l.Info("listening_tls", "addr", addr, "cert", certPath)
		if err := s.ListenAndServeTLS(certPath, keyPath); err != nil && err != http.ErrServerClosed {
			l.Error("server_error", "err", err)
		}
		return
	}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		l.Error("server_error", "err", err)
	}
}

// redirectHandler：把 HTTP 请求改写到 HTTPS 服务端口
func redirectHandler(addr string) http.Handler {
	httpsPort := strings.TrimPrefix(addr, ":")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		baseHost := r.Host
		if i := strings.LastIndex(baseHost, ":"); i != -1 {
			baseHost = baseHost[:i]
		}
		target := "https://" + baseHost
		if httpsPort != "" {
			target += ":" + httpsPort
		}
		target += r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
}
