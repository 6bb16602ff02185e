// loomd is the daemon and toolbelt around the trace-mining pipeline:
// it runs mining cycles (one-shot or triggered), imports trace
// archives, and exports deployed workflows for inspection.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loomkit/loom/pkg/config"
	"github.com/loomkit/loom/pkg/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "loomd",
	Short: "Trace miner and workflow router daemon",
	Long: `loomd learns deterministic workflows from successful agent execution
traces. It aligns traces per query fingerprint, extracts the consensus
task sequence, compiles it into a verified state graph, and routes live
queries between the synthesized workflow and the fallback oracle with a
Thompson-sampling bandit.`,
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "loom.yaml", "path to config file")
}

// loadConfig reads the configured file, falling back to defaults when
// the default path simply does not exist.
func loadConfig() (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) && !rootCmd.PersistentFlags().Changed("config") {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func setupLogging(cfg *config.Config) {
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: cfg.Severity(),
		Outputs:  []logging.Output{logging.NewConsoleOutput(true)},
	}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
