package serverrun

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"

	cfgpkg "github.com/rzbill/ldes/internal/config"
	"github.com/rzbill/ldes/internal/runtime"
	logpkg "github.com/rzbill/ldes/pkg/log"
)

// Options configures Run.
type Options struct {
	// ConfigPath is an optional JSON or YAML config file.
	ConfigPath string
	// Override is applied to the loaded config before validation.
	Override func(*cfgpkg.Config)
	// Ready, when set, receives the metrics listener address once serving
	// (empty when metrics are disabled).
	Ready func(metricsAddr string)
}

// StoreDir is the Pebble directory below a data dir.
func StoreDir(dataDir string) string { return filepath.Join(dataDir, "store") }

// LoadConfig reads the config file, overlays LDES_* variables and the
// override, and validates the result.
func LoadConfig(path string, override func(*cfgpkg.Config)) (cfgpkg.Config, error) {
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if override != nil {
		override(&cfg)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	return cfg, cfg.Validate()
}

// Run opens the runtime with background work enabled, serves metrics when
// configured and blocks until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := LoadConfig(opts.ConfigPath, opts.Override)
	if err != nil {
		return err
	}
	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return err
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(procLogger)

	dataDir := cfg.DataDir
	cfg.DataDir = StoreDir(dataDir)
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger, Background: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting ldes server",
		logpkg.Str("data_dir", dataDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Str("metrics", cfg.MetricsAddr),
		logpkg.Int("parallelism", cfg.Parallelism),
		logpkg.Int("pagination_interval_ms", cfg.PaginationIntervalMs),
	)

	var srv *http.Server
	errCh := make(chan error, 1)
	addr := ""
	if cfg.MetricsAddr != "" {
		ln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			return errors.Wrapf(err, "listen %s", cfg.MetricsAddr)
		}
		addr = ln.Addr().String()
		srv = &http.Server{Handler: NewHandler(rt), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case <-sctx.Done():
	case err = <-errCh:
		procLogger.Error("metrics server failed", logpkg.Err(err))
	}
	// Stop serving before the runtime closes the db.
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	procLogger.Info("ldes server stopped")
	return err
}

// NewHandler serves /metrics and /healthz for rt.
func NewHandler(rt *runtime.Runtime) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rt.Metrics().Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rt.CheckHealth(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
