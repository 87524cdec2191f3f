package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/aponysus/procedure/config"
	"github.com/aponysus/procedure/logger"
)

type configKey struct{}

// RootCmd builds the procedure command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "procedure",
		Short:        "Run network tasks on a procedure queue",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")
	flags.Int("workers", 0, "queue worker count")
	flags.Duration("task-timeout", 0, "per task timeout, 0 disables it")
	flags.Bool("metrics", false, "serve Prometheus metrics while running")
	flags.String("metrics-addr", "", "address of the metrics endpoint")

	root.AddCommand(
		FetchCmd(),
		StatusCmd(),
	)
	return root
}

var flagKeys = map[string]string{
	"log-level":    "log.level",
	"log-json":     "log.json",
	"workers":      "queue.workers",
	"task-timeout": "queue.task_timeout",
	"metrics":      "metrics.enabled",
	"metrics-addr": "metrics.address",
}

// setup loads the configuration, applying only the flags the user set, and
// stores it with a logger on the command context.
func setup(cmd *cobra.Command) error {
	overrides := make(map[string]any)
	flags := cmd.Flags()
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		overrides[key] = f.Value.String()
	}

	cfg, err := config.Load(config.WithOverrides(overrides))
	if err != nil {
		return err
	}

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	log := logger.NewLogger(lc)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, configKey{}, cfg)
	cmd.SetContext(logger.ContextWithLogger(ctx, log))
	return nil
}

func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey{}).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("procedure: configuration not loaded")
	}
	return cfg, nil
}
