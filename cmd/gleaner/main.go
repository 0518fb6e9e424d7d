package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/cmd/gleaner/commands"
	"github.com/corvata/gleaner/logger"
)

var rootCmd = &cobra.Command{
	Use:   "gleaner",
	Short: "Gleaner - resumable text extraction for PDF corpora",
	Long: `Gleaner - resumable text extraction for PDF corpora.

Gleaner runs each document through an escalating cascade of extraction
stages: embedded text first, OCR when the embedded layer is thin or
missing, and an optional paid cloud vision pass for pages nothing else
could read. Progress is checkpointed per stage, so an interrupted run
picks up where it stopped.

Available commands:
  extract   - Run the extraction cascade over the corpus
  status    - Show extraction state per document
  lock      - Inspect or clear the run lock
  inventory - Reconcile the manifest against the corpus directory
  fetch     - Download sources named by the manifest
  config    - Manage gleaner configuration

Examples:
  gleaner extract                   # Process everything not yet done
  gleaner extract --keys a,b        # Process two specific documents
  gleaner extract --vision --force  # Re-run with the paid stage enabled
  gleaner status --watch            # Live view of a run in progress
  gleaner lock status               # See who holds the run lock`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.InitializeWithVerbosity(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Machine-readable output (JSON events on stdout, logs on stderr)")
	rootCmd.PersistentFlags().String("config", "", "Config file to use instead of the discovery cascade")

	rootCmd.AddCommand(commands.ExtractCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.LockCmd)
	rootCmd.AddCommand(commands.InventoryCmd)
	rootCmd.AddCommand(commands.FetchCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
