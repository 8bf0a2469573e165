// Command execwalld is the userspace host process for the execution
// allowlist: it owns the engine's maps and ring buffers, attaches the
// real enforcement and observation backends, reconciles the cgroup
// tracker against the live cgroupfs tree, and serves the operator
// console (websocket decision stream plus a small static dashboard) as
// a single long-running binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/strongdm/execwall/internal/archive"
	"github.com/strongdm/execwall/internal/cgroupfs"
	"github.com/strongdm/execwall/internal/cgrouptrack"
	"github.com/strongdm/execwall/internal/config"
	"github.com/strongdm/execwall/internal/eventlog"
	"github.com/strongdm/execwall/internal/gate"
	"github.com/strongdm/execwall/internal/live"
	"github.com/strongdm/execwall/internal/pathresolve"
	"github.com/strongdm/execwall/internal/ringbuf"
	"github.com/strongdm/execwall/internal/telemetry/otel"
	"github.com/strongdm/execwall/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersion()
		return
	}
	if err := run(os.Args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

type daemonConfig struct {
	ConfigPath    string
	Listen        string
	CgroupRoot    string
	WatchInterval time.Duration
	HistorySize   int
	BulkMaxEvents int
	BulkMaxBytes  int
}

func parseFlags(args []string) (*daemonConfig, error) {
	fs := flag.NewFlagSet("execwalld", flag.ContinueOnError)

	defaultConfig := strings.TrimSpace(os.Getenv("EXECWALL_CONFIG"))
	if defaultConfig == "" {
		defaultConfig = "/etc/execwall/execwall.toml"
	}
	configPath := fs.String("config", defaultConfig, "Policy configuration file (TOML)")

	defaultListen := strings.TrimSpace(os.Getenv("EXECWALL_LISTEN"))
	if defaultListen == "" {
		defaultListen = ":7870"
	}
	listen := fs.String("listen", defaultListen, "Address to serve the operator console on (blank disables it)")

	cgroupRoot := fs.String("cgroup-root", strings.TrimSpace(os.Getenv("EXECWALL_CGROUP_ROOT")), "Cgroup subtree to reconcile the tracker map against (auto-detected when blank)")
	watchInterval := fs.Duration("watch-interval", time.Second, "Cgroup tracker reconciliation interval")
	historySize := fs.Int("history-size", 25000, "Number of decision events to retain in memory")
	bulkMaxEvents := fs.Int("ws-bulk-max-events", 2000, "Max events replayed to a newly connected client (0 = unlimited)")
	bulkMaxBytes := fs.Int("ws-bulk-max-bytes", 1_000_000, "Max bytes replayed to a newly connected client (0 = unlimited)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: execwalld [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}
	if len(fs.Args()) > 0 {
		return nil, fmt.Errorf("unexpected extra arguments: %v", fs.Args())
	}

	return &daemonConfig{
		ConfigPath:    *configPath,
		Listen:        strings.TrimSpace(*listen),
		CgroupRoot:    *cgroupRoot,
		WatchInterval: *watchInterval,
		HistorySize:   *historySize,
		BulkMaxEvents: *bulkMaxEvents,
		BulkMaxBytes:  *bulkMaxBytes,
	}, nil
}

func run(args []string) error {
	dcfg, err := parseFlags(args)
	if err != nil {
		return err
	}

	doc, err := config.Load(dcfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("execwalld: %w", err)
	}

	strategy := pathresolve.ExplicitCounter2048
	lengthCap := gate.DefaultLengthCap
	if !doc.Load.LargeKeysCapable {
		lengthCap = gate.OldVerifierLengthCap
	}

	execveRing := ringbuf.New(ringbuf.DefaultCapacity)
	monitorRing := ringbuf.New(ringbuf.DefaultCapacity)
	defer execveRing.Close()
	defer monitorRing.Close()

	logger := log.New(os.Stderr, "execwalld: ", log.LstdFlags)

	engineCfg := gate.Config{
		Hierarchy:          doc.Load.Hierarchy(),
		V1ControllerIndex:  cgrouptrack.ControllerIndex(doc.Load.V1SubsysIndex),
		Strategy:           strategy,
		LargeKeysSupported: doc.Load.LargeKeysCapable,
		LengthCap:          lengthCap,
		Debug:              doc.Load.DebugMode,
	}
	engine := gate.New(engineCfg, execveRing, monitorRing, logger)
	config.Apply(doc, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryCfg := otel.LoadConfigFromEnv()
	provider, err := otel.Setup(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("execwalld: telemetry setup: %w", err)
	}
	defer provider.Shutdown(context.Background())
	engine.SetInstruments(provider.Gate())

	hub := live.NewWebSocketHub(dcfg.HistorySize, dcfg.BulkMaxEvents, dcfg.BulkMaxBytes)
	go hub.Run()

	go drainRing(execveRing, hub, "execwall.observe")
	go drainRing(monitorRing, hub, "execwall.decision")

	cgroupRoot := dcfg.CgroupRoot
	if cgroupRoot == "" {
		if mounts, err := cgroupfs.Detect(); err == nil {
			cgroupRoot = mounts.Root()
		} else {
			logger.Printf("cgroup auto-detection failed, tracker reconciliation disabled: %v", err)
		}
	}
	if cgroupRoot != "" {
		watcher := cgrouptrack.NewWatcher(cgroupRoot, engine.Tracker, dcfg.WatchInterval)
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Printf("cgroup watcher: %v", err)
			}
		}()
	}

	backend, err := gate.NewFanotifyBackend()
	if err != nil {
		logger.Printf("enforcement backend unavailable: %v", err)
	} else {
		defer backend.Close()
		go func() {
			if err := backend.Run(ctx, engine); err != nil && ctx.Err() == nil {
				logger.Printf("enforcement backend stopped: %v", err)
			}
		}()
	}

	observer, err := gate.NewFanotifyObserver()
	if err != nil {
		logger.Printf("observation backend unavailable: %v", err)
	} else {
		defer observer.Close()
		go func() {
			if err := observer.Run(ctx, engine); err != nil && ctx.Err() == nil {
				logger.Printf("observation backend stopped: %v", err)
			}
		}()
	}

	var srv *http.Server
	if dcfg.Listen != "" {
		srv, err = startServer(dcfg.Listen, hub)
		if err != nil {
			return fmt.Errorf("execwalld: %w", err)
		}
		logger.Printf("operator console listening on %s", dcfg.Listen)
	}

	<-ctx.Done()
	logger.Printf("shutting down")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
	return nil
}

// drainRing decodes wire-format records off ring and rebroadcasts them
// to the operator console's live hub until the ring is closed.
func drainRing(ring *ringbuf.RingBuffer, hub *live.WebSocketHub, event string) {
	for {
		raw, err := ring.Read()
		if errors.Is(err, ringbuf.ErrClosed) {
			return
		}
		if err != nil {
			continue
		}
		rec, err := eventlog.UnmarshalRecord(raw)
		if err != nil {
			log.Printf("execwalld: malformed ring record: %v", err)
			continue
		}
		hub.BroadcastDecision(event, rec.Cgid, rec.TrackerID, string(rec.Path), modeString(rec.ModeTag), decisionString(rec.ModeTag))
	}
}

func modeString(m eventlog.Mode) string {
	switch m {
	case eventlog.ModeMonitor:
		return "monitor"
	case eventlog.ModeEnforce:
		return "enforce"
	default:
		return "observe"
	}
}

func decisionString(m eventlog.Mode) string {
	switch m {
	case eventlog.ModeEnforce:
		return "deny"
	case eventlog.ModeMonitor:
		return "allow"
	default:
		return ""
	}
}

func startServer(addr string, hub *live.WebSocketHub) (*http.Server, error) {
	uiFS, err := fs.Sub(ui.Dir, "dist")
	if err != nil {
		return nil, fmt.Errorf("mount operator console assets: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", ui.NewSPAHandlerWithTitle(http.FS(uiFS), ui.ComposeTitle("", "")))
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zstd")
		w.Header().Set("Content-Disposition", `attachment; filename="execwall-events.ndjson.zst"`)
		if _, err := archive.WriteTo(w, hub.RecentEvents(0)); err != nil {
			log.Printf("execwalld: export failed: %v", err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("execwalld: http server: %v", err)
		}
	}()
	return srv, nil
}

func printVersion() {
	fmt.Printf("execwalld %s (%s)\n", version, commit)
}
