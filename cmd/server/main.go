// Command server runs a single authoritative field and serves the
// controller websocket plus health/metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"phalanx.gg/internal/persistence/indexdb"
	persistlog "phalanx.gg/internal/persistence/log"
	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/field"
	"phalanx.gg/internal/sim/tuning"
	"phalanx.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		fieldID    = flag.String("field", "field_1", "field id")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		tickRate   = flag.Int("tick_rate", 0, "override tuning tick_rate_hz (0 = use tuning)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index (JSONL logs still written)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	fieldDir := filepath.Join(*dataDir, "fields", *fieldID)
	if err := os.MkdirAll(fieldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// One server per field dir: the JSONL logs and the index are
	// single-writer files.
	lock, err := lockFieldDir(fieldDir)
	if err != nil {
		logger.Fatalf("lock field dir: %v", err)
	}
	defer func() { _ = lock.Unlock() }()

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *tickRate > 0 {
		tune.TickRateHz = *tickRate
		if err := tune.Validate(); err != nil {
			logger.Fatalf("tick_rate override: %v", err)
		}
	}

	// Optional: read-model index backend (does not affect sim determinism).
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(fieldDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index backend: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertMeta(*fieldID, protocol.Version, tune); err != nil {
			logger.Printf("index backend: upsert meta: %v", err)
		}
	}

	f := field.New(field.Config{
		ID:              *fieldID,
		TickRateHz:      tune.TickRateHz,
		StateEveryTicks: tune.StateEveryTicks,
		MaxAgents:       tune.MaxAgents,
		MaxAgentRadius:  tune.MaxAgentRadius,
		BoundaryR:       tune.FieldBoundaryR,
		CmdWindowTicks:  tune.RateLimits.CmdWindowTicks,
		CmdMax:          tune.RateLimits.CmdMax,
		OutQueueFrames:  tune.OutQueueFrames,
	})

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(fieldDir)
	auditLog := persistlog.NewAuditLogger(fieldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	f.SetTickLogger(multiTickLogger{a: tickLog, b: idx})
	f.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})

	go func() {
		if err := f.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("field stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := f.Metrics()
		tick := f.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP phalanx_field_tick Current field tick.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_tick gauge\n")
		fmt.Fprintf(rw, "phalanx_field_tick{field=%q} %d\n", *fieldID, tick)

		fmt.Fprintf(rw, "# HELP phalanx_field_agents Current number of agents in the crowd.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_agents gauge\n")
		fmt.Fprintf(rw, "phalanx_field_agents{field=%q} %d\n", *fieldID, m.Agents)

		fmt.Fprintf(rw, "# HELP phalanx_field_formations Current number of live formations.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_formations gauge\n")
		fmt.Fprintf(rw, "phalanx_field_formations{field=%q} %d\n", *fieldID, m.Formations)

		fmt.Fprintf(rw, "# HELP phalanx_field_targeted_formations Formations with a live target.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_targeted_formations gauge\n")
		fmt.Fprintf(rw, "phalanx_field_targeted_formations{field=%q} %d\n", *fieldID, m.Targeted)

		fmt.Fprintf(rw, "# HELP phalanx_field_sessions Current number of connected controller sessions.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_sessions gauge\n")
		fmt.Fprintf(rw, "phalanx_field_sessions{field=%q} %d\n", *fieldID, m.Sessions)

		fmt.Fprintf(rw, "# HELP phalanx_field_dispatches Slot targets dispatched on the last tick.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_dispatches gauge\n")
		fmt.Fprintf(rw, "phalanx_field_dispatches{field=%q} %d\n", *fieldID, m.Dispatches)

		fmt.Fprintf(rw, "# HELP phalanx_field_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_queue_depth gauge\n")
		fmt.Fprintf(rw, "phalanx_field_queue_depth{field=%q,queue=%q} %d\n", *fieldID, "inbox", m.Queues.Inbox)
		fmt.Fprintf(rw, "phalanx_field_queue_depth{field=%q,queue=%q} %d\n", *fieldID, "join", m.Queues.Join)
		fmt.Fprintf(rw, "phalanx_field_queue_depth{field=%q,queue=%q} %d\n", *fieldID, "leave", m.Queues.Leave)

		fmt.Fprintf(rw, "# HELP phalanx_field_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE phalanx_field_step_ms gauge\n")
		fmt.Fprintf(rw, "phalanx_field_step_ms{field=%q} %.3f\n", *fieldID, m.StepMS)

		writeIndexMetrics(rw, idx)
	})

	enableAdminHTTP := envBool("PX_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("PX_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				FieldID string        `json:"field_id"`
				Tick    uint64        `json:"tick"`
				Metrics field.Metrics `json:"metrics"`
				Index   indexdb.Stats `json:"index"`
			}{
				FieldID: *fieldID,
				Tick:    f.CurrentTick(),
				Metrics: f.Metrics(),
				Index:   idx.Stats(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (PX_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (PX_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(f, logger).Handler())

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

	logger.Printf("field=%s tick_rate=%dHz listening on %s", *fieldID, tune.TickRateHz, *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
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

// lockFieldDir takes the exclusive per-field lock. A second server
// pointed at the same dir fails fast instead of corrupting the logs.
func lockFieldDir(fieldDir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(fieldDir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%s is held by another server", lock.Path())
	}
	return lock, nil
}

func writeIndexMetrics(rw http.ResponseWriter, idx *indexdb.SQLiteIndex) {
	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP phalanx_index_queue_depth Current index writer queue depth.\n")
	fmt.Fprintf(rw, "# TYPE phalanx_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "phalanx_index_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP phalanx_index_queue_capacity Index writer queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE phalanx_index_queue_capacity gauge\n")
	fmt.Fprintf(rw, "phalanx_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP phalanx_index_dropped_total Total entries dropped because the writer queue was full.\n")
	fmt.Fprintf(rw, "# TYPE phalanx_index_dropped_total counter\n")
	fmt.Fprintf(rw, "phalanx_index_dropped_total{kind=%q} %d\n", "tick", s.DropTickTotal)
	fmt.Fprintf(rw, "phalanx_index_dropped_total{kind=%q} %d\n", "audit", s.DropAuditTotal)
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

func envBool(name string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// multiTickLogger fans tick entries out to the JSONL log and the index.
type multiTickLogger struct {
	a field.TickLogger
	b field.TickLogger
}

func (m multiTickLogger) WriteTick(entry field.TickLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteTick(entry)
	}
	if m.b != nil {
		_ = m.b.WriteTick(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a field.AuditLogger
	b field.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry field.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
