package serverrun

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/ldes/internal/config"
	"github.com/rzbill/ldes/internal/fragment"
	"github.com/rzbill/ldes/internal/runtime"
	"github.com/rzbill/ldes/internal/view"
	logpkg "github.com/rzbill/ldes/pkg/log"
)

func TestStoreDir(t *testing.T) {
	if got := StoreDir("/tmp/ldes"); got != filepath.Join("/tmp/ldes", "store") {
		t.Errorf("unexpected store dir %s", got)
	}
}

func TestLoadConfigLayers(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ldes.json")
	if err := os.WriteFile(file, []byte(`{"dataDir":"/from/file","parallelism":2}`), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LDES_PARALLELISM", "6")
	cfg, err := LoadConfig(file, func(c *cfgpkg.Config) { c.LogLevel = "debug" })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/from/file" || cfg.Parallelism != 6 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	if _, err := LoadConfig("", func(c *cfgpkg.Config) { c.Fsync = "bogus" }); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestHandlerServesHealthAndMetrics(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	_, _, err = rt.CreateView(context.Background(), view.Definition{
		Name:       fragment.ViewName{Name: "v1"},
		Pagination: map[string]string{"memberLimit": "5"},
	})
	if err != nil {
		t.Fatalf("create view: %v", err)
	}
	srv := httptest.NewServer(NewHandler(rt))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "ldes_server_storage_op_seconds") {
		t.Fatalf("storage metrics missing from:\n%s", body)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			Override: func(c *cfgpkg.Config) {
				c.DataDir = dir
				c.Fsync = "never"
				c.LogLevel = "error"
				c.MetricsAddr = "127.0.0.1:0"
			},
			Ready: func(addr string) { ready <- addr },
		})
	}()

	select {
	case addr := <-ready:
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			t.Fatalf("healthz: %v", err)
		}
		resp.Body.Close()
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server not ready")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop")
	}
	if _, err := os.Stat(StoreDir(dir)); err != nil {
		t.Fatalf("store dir missing: %v", err)
	}
}
