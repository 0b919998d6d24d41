// Package config loads ldes configuration. Default() is the baseline, Load
// reads a JSON or YAML file over it and FromEnv overlays LDES_* variables.
//
// Example:
//
//	cfg, err := config.Load("/etc/ldes.yaml")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
//	rt, err := runtime.Open(runtime.Options{Config: cfg})
package config
