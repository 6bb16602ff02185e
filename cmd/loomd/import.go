package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/pkg/store"
)

var importCmd = &cobra.Command{
	Use:   "import <archive.parquet>",
	Short: "Import a Parquet trace archive into the trace store",
	Args:  cobra.ExactArgs(1),
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

		count, err := store.ImportParquetTraces(cmd.Context(), args[0], stores.traces)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d traces\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
