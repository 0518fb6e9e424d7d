package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/corvata/gleaner/corpus"
	"github.com/corvata/gleaner/errors"
	"github.com/corvata/gleaner/logger"
)

// FetchCmd represents the fetch command - stage sources into the corpus
var FetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download sources named by the manifest",
	Long: `Download sources named by the manifest.

Each manifest entry with a source_url is downloaded into the corpus
directory under its declared file name. Files already present are left
alone unless --force. Entries without a source_url are skipped; they
are expected to be staged by hand.

Examples:
  gleaner fetch                    # Everything missing
  gleaner fetch --only a,b         # Two specific documents
  gleaner fetch --only a --force   # Re-download one`,
	RunE: runFetch,
}

func init() {
	FetchCmd.Flags().StringSlice("only", nil, "Only fetch these manifest keys")
	FetchCmd.Flags().Bool("force", false, "Re-download files already present")
}

func runFetch(cmd *cobra.Command, args []string) error {
	only, _ := cmd.Flags().GetStringSlice("only")
	force, _ := cmd.Flags().GetBool("force")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	manifest, err := corpus.LoadManifest(cfg.Paths.Manifest)
	if err != nil {
		return err
	}
	selected, err := manifest.Select(only)
	if err != nil {
		return errors.AsInput(err)
	}

	// Entries without a source_url are staged by hand, not fetch failures.
	docs := make([]corpus.Document, 0, len(selected))
	skipped := 0
	for _, doc := range selected {
		if doc.SourceURL == "" {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}

	fetcher := corpus.NewFetcher(cfg.Paths.CorpusDir, logger.ComponentLogger("fetch"))
	fetched, failures := fetcher.FetchAll(cmd.Context(), docs, force)

	fmt.Printf("Fetched %d of %d document(s)\n", fetched, len(docs))
	if skipped > 0 {
		fmt.Printf("Skipped %d without a source_url\n", skipped)
	}
	if len(failures) == 0 {
		return nil
	}

	keys := make([]string, 0, len(failures))
	for k := range failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, failures[k])
	}
	return errors.Newf("%d document(s) failed to fetch", len(failures))
}
