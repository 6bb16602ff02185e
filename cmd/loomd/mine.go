package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/pkg/miner"
	"github.com/loomkit/loom/pkg/router"
)

var mineCmd = &cobra.Command{
	Use:   "mine [fingerprint...]",
	Short: "Run one mining cycle",
	Long: `Mine the given fingerprints, or every fingerprint in the trace store
when none are named. Skips (too few traces, weak alignment, low
confidence) are normal outcomes and reported as such.`,
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

		ctx := cmd.Context()
		fingerprints := args
		if len(fingerprints) == 0 {
			if fingerprints, err = stores.traces.ListFingerprints(ctx); err != nil {
				return err
			}
		}
		if len(fingerprints) == 0 {
			fmt.Println("no fingerprints with successful traces")
			return nil
		}

		r := router.New(stores.stats, router.WithPrior(cfg.Router.PriorAlpha, cfg.Router.PriorBeta))
		m := miner.New(cfg.MinerConfig(), stores.traces, stores.patterns, stores.workflows, r)
		results := m.MineAll(ctx, fingerprints)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FINGERPRINT\tSTATUS\tTRACES\tCONFIDENCE\tDETAIL")
		failed := 0
		for _, result := range results {
			detail := result.Reason
			if result.Err != nil {
				detail = result.Err.Error()
				failed++
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%.3f\t%s\n",
				result.Fingerprint, result.Status, result.TraceCount, result.Confidence, detail)
		}
		w.Flush()

		if failed > 0 {
			return fmt.Errorf("%d of %d cycles failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
}
