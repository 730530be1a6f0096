package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fahammohmd/pickme-go/internal/index"
	"github.com/fahammohmd/pickme-go/internal/logging"
)

// NewIndexCmd constructs the `pickme index` command, which builds (or
// verifies) the document index without starting a session.
func NewIndexCmd() *cobra.Command {
	var rebuild bool
	var status bool

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build, verify, or inspect the document index",
		Long: `Scan the documents directory and ensure the vector index is up to date.

Without flags the index is reused when the corpus fingerprint matches the
persisted record and rebuilt otherwise — the same check every other command
performs at startup. --rebuild forces a rebuild regardless of fingerprint;
--status prints the last completed build without touching the index.

Examples:
  pickme index
  pickme index --rebuild
  pickme index --status`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if status {
				return printIndexStatus(cmd)
			}

			mgr, _, err := openIndex(ctx, rebuild, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			fmt.Printf("index %s (fingerprint %s)\n", mgr.State(), shortFingerprint(mgr.Fingerprint()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Force a rebuild even if the corpus is unchanged")
	cmd.Flags().BoolVar(&status, "status", false, "Print the last completed build and exit")

	return cmd
}

// printIndexStatus reads the catalog record and per-document rows without
// opening or building the index.
func printIndexStatus(cmd *cobra.Command) error {
	dir := envOrDefault("PICKME_INDEX_DIR", defaultIndexDir)
	cat, err := index.OpenCatalogIn(dir)
	if err != nil {
		return fmt.Errorf("index: open catalog: %w", err)
	}
	defer cat.Close()

	rec, err := cat.Record(cmd.Context())
	if err != nil {
		return fmt.Errorf("index: read record: %w", err)
	}
	if rec == nil {
		fmt.Println("no index has been built yet")
		return nil
	}

	fmt.Printf("fingerprint:     %s\n", rec.Fingerprint)
	fmt.Printf("documents:       %d\n", rec.DocCount)
	fmt.Printf("chunks:          %d\n", rec.ChunkCount)
	fmt.Printf("embedding model: %s\n", rec.EmbeddingModel)
	fmt.Printf("chunk size:      %d (overlap %d)\n", rec.ChunkSize, rec.ChunkOverlap)
	fmt.Printf("built at:        %s\n", rec.BuiltAt.Format("2006-01-02 15:04:05 MST"))

	docs, err := cat.Documents(cmd.Context())
	if err != nil {
		return fmt.Errorf("index: read documents: %w", err)
	}
	if len(docs) > 0 {
		fmt.Println("\nindexed documents:")
		for _, d := range docs {
			fmt.Printf("  %s (%d chunks)\n", d.Path, d.Chunks)
		}
	}
	return nil
}

// shortFingerprint truncates a fingerprint for one-line output.
func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
