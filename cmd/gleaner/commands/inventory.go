package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/corpus"
	"github.com/corvata/gleaner/logger"
	"github.com/corvata/gleaner/quality"
	"github.com/corvata/gleaner/stage"
)

// InventoryCmd represents the inventory command - manifest vs disk
var InventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Reconcile the manifest against the corpus directory",
	Long: `Reconcile the manifest against the corpus directory.

Lists every manifest entry with its file present, entries whose file is
missing (candidates for 'gleaner fetch'), and PDFs on disk no entry
claims. With --rescan, documents the manifest does not pin to a type
are probed: the embedded text of the first few pages decides whether a
document counts as born-digital or scanned.

Examples:
  gleaner inventory           # Quick reconciliation, no probing
  gleaner inventory --rescan  # Also classify unpinned documents`,
	RunE: runInventory,
}

func init() {
	InventoryCmd.Flags().Bool("rescan", false, "Probe unpinned documents to classify digital vs scanned")
}

func runInventory(cmd *cobra.Command, args []string) error {
	rescan, _ := cmd.Flags().GetBool("rescan")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manifest, err := corpus.LoadManifest(cfg.Paths.Manifest)
	if err != nil {
		return err
	}

	scanner := &corpus.Scanner{
		CorpusDir:  cfg.Paths.CorpusDir,
		Manifest:   manifest,
		Thresholds: quality.FromConfig(cfg.Quality),
		ProbePages: cfg.Quality.ScannedProbePages,
		Logger:     logger.ComponentLogger("inventory"),
	}
	if rescan {
		embedded := stage.NewEmbedded(cfg.Stages, stage.ExecRunner{})
		scanner.Probe = embedded.ProbePages
	}

	inv, err := scanner.Scan(cmd.Context())
	if err != nil {
		return err
	}

	if len(inv.Documents) > 0 {
		fmt.Printf("%-30s %-10s %-6s %s\n", "KEY", "TYPE", "LANG", "FILE")
		fmt.Printf("%-30s %-10s %-6s %s\n", "---", "----", "----", "----")
		for _, doc := range inv.Documents {
			docType := string(doc.DocType)
			if docType == "" {
				docType = "unknown"
			}
			lang := doc.Language
			if lang == "" {
				lang = "-"
			}
			fmt.Printf("%-30s %-10s %-6s %s\n", doc.Key, docType, lang, doc.File)
		}
	}

	if len(inv.Missing) > 0 {
		fmt.Printf("\nMissing (try 'gleaner fetch'):\n")
		for _, key := range inv.Missing {
			fmt.Printf("  %s\n", key)
		}
	}

	if len(inv.Unlisted) > 0 {
		fmt.Printf("\nOn disk but not in the manifest:\n")
		for _, file := range inv.Unlisted {
			fmt.Printf("  %s\n", file)
		}
	}

	fmt.Printf("\nTotal: %d present, %d missing, %d unlisted\n",
		len(inv.Documents), len(inv.Missing), len(inv.Unlisted))
	return nil
}
