// Package serverrun exposes the Run entrypoint used by the CLI to start an
// ldes node: it loads configuration, opens the runtime with its pagination,
// sealing and trimming loops, and optionally serves /metrics and /healthz.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{ConfigPath: "/etc/ldes.yaml"})
package serverrun
