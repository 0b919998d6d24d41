package config

import (
	"os"
	"strconv"
)

// FromEnv overlays LDES_* environment variables onto cfg. Unparsable
// numbers are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("LDES_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LDES_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("LDES_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LDES_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LDES_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	intVar("LDES_FSYNC_INTERVAL_MS", &cfg.FsyncIntervalMs)
	intVar("LDES_PAGINATION_INTERVAL_MS", &cfg.PaginationIntervalMs)
	intVar("LDES_SEAL_INTERVAL_MS", &cfg.SealIntervalMs)
	intVar("LDES_PARALLELISM", &cfg.Parallelism)
}

func intVar(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
