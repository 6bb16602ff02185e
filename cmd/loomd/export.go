package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/pkg/compile"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <fingerprint>",
	Short: "Export a deployed workflow as Graphviz DOT",
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

		wf, err := stores.workflows.LatestWorkflow(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if wf == nil {
			return fmt.Errorf("no deployed workflow for fingerprint %s", args[0])
		}

		dot, err := compile.ExportDOT(wf)
		if err != nil {
			return err
		}
		if exportOut == "" {
			fmt.Print(dot)
			return nil
		}
		return os.WriteFile(exportOut, []byte(dot), 0o644)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
