package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/pkg/logging"
	"github.com/loomkit/loom/pkg/miner"
	"github.com/loomkit/loom/pkg/router"
	"github.com/loomkit/loom/pkg/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mining trigger until interrupted",
	Long: `In event mode, serve consumes trace-ingested events from the in-process
bus and mines a fingerprint as soon as it reaches min_traces. In
interval mode it sweeps the whole trace store on every tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		stores, err := openStores(cfg)
		if err != nil {
			return err
		}
		defer stores.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		r := router.New(stores.stats, router.WithPrior(cfg.Router.PriorAlpha, cfg.Router.PriorBeta))
		m := miner.New(cfg.MinerConfig(), stores.traces, stores.patterns, stores.workflows, r)

		logger := logging.GetLogger()
		if cfg.Trigger.Mode == "interval" {
			interval := time.Duration(cfg.Trigger.Interval)
			logger.Info(ctx, "interval trigger every %s", interval)
			tr := trigger.New(m, stores.traces, nil, cfg.Mining.MinTraces)
			return tr.RunInterval(ctx, interval)
		}

		bus := trigger.NewBus()
		defer bus.Close()
		logger.Info(ctx, "event trigger on %s", trigger.TopicTraceIngested)
		tr := trigger.New(m, stores.traces, bus, cfg.Mining.MinTraces)
		return tr.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
