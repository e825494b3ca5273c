package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	persistlog "voxelfall.ai/internal/persistence/log"
	"voxelfall.ai/internal/sim/course"
	"voxelfall.ai/internal/sim/tuning"
	"voxelfall.ai/internal/sim/world"
	"voxelfall.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "voxel_fall", "world id")
		seed       = flag.Int64("seed", 1337, "spawn position seed")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		coursePath = flag.String("course", "", "path to course.yaml (default: <configs>/course.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite results index")
		logFile    = flag.String("log_file", "", "also write the server log to this file (rotated)")
		logMaxMB   = flag.Int("log_max_mb", 64, "rotate -log_file after this many megabytes")
	)
	flag.Parse()

	logOut := io.Writer(os.Stdout)
	if p := strings.TrimSpace(*logFile); p != "" {
		rot := &lumberjack.Logger{
			Filename:   p,
			MaxSize:    *logMaxMB,
			MaxBackups: 5,
			Compress:   true,
		}
		defer rot.Close()
		logOut = io.MultiWriter(os.Stdout, rot)
	}
	logger := log.New(logOut, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(configPath(*tuningPath, *configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	crsPath := configPath(*coursePath, *configDir, "course.yaml")
	if _, err := os.Stat(crsPath); err != nil {
		logger.Printf("course not found (%s); using built-in course", crsPath)
		crsPath = ""
	}
	crs, err := course.Load(crsPath)
	if err != nil {
		logger.Fatalf("load course: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertConfigs(tune, crs); err != nil {
			logger.Printf("index backend: upsert configs: %v", err)
		}
	}

	w, err := world.New(world.WorldConfig{
		ID:     *worldID,
		Seed:   *seed,
		Tuning: tune,
		Course: crs,
	})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	w.SetLogger(log.New(logOut, "[world] ", log.LstdFlags|log.Lmicroseconds))

	raceLog := persistlog.NewRaceLogger(worldDir)
	defer raceLog.Close()
	if idx != nil {
		w.SetRaceLogger(multiRaceLogger{a: raceLog, b: idx})
	} else {
		w.SetRaceLogger(multiRaceLogger{a: raceLog})
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	wsSrv, err := ws.NewServer(w, log.New(logOut, "[ws] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("ws: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(*worldID, w, idx))

	if envBool("VF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("/admin/v1/state", stateHandler(*worldID, w))
		mux.HandleFunc("/admin/v1/leaderboard", leaderboardHandler(w))
	} else {
		logger.Printf("admin endpoints disabled (VF_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VF_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s world=%s course=%s platforms=%d", *addr, *worldID, crs.Name, len(crs.Platforms))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-worldDone
}

func configPath(explicit, dir, name string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	return filepath.Join(dir, name)
}

func stateHandler(worldID string, w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		resp := struct {
			WorldID string             `json:"world_id"`
			Tick    uint64             `json:"tick"`
			Metrics world.WorldMetrics `json:"metrics"`
		}{
			WorldID: worldID,
			Tick:    w.CurrentTick(),
			Metrics: w.Metrics(),
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func leaderboardHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		lb, err := w.RequestLeaderboard(ctx)
		rw.Header().Set("Content-Type", "application/json")
		if err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
			return
		}
		_ = json.NewEncoder(rw).Encode(lb)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiRaceLogger struct {
	a world.RaceLogger
	b world.RaceLogger
}

func (m multiRaceLogger) WriteRace(entry world.RaceLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteRace(entry)
	}
	if m.b != nil {
		_ = m.b.WriteRace(entry)
	}
	return nil
}
