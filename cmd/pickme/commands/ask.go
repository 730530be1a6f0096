package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fahammohmd/pickme-go/internal/engine"
	"github.com/fahammohmd/pickme-go/internal/logging"
)

// NewAskCmd constructs the `pickme ask` command, which answers a single
// investor question and prints the grounded answer with its sources.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question about the company documents",
		Long: `Ask the investor assistant one question and print the answer.

The index is opened first (reused when the document corpus is unchanged,
rebuilt otherwise), so the first run after document changes takes longer.

Examples:
  pickme ask "what was revenue growth in the last funding round?"
  pickme ask --sources "who are the founders?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mgr, emb, err := openIndex(ctx, false, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			eng, err := buildEngine(ctx, mgr, emb)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			question := strings.Join(args, " ")
			ans, err := eng.Ask(ctx, engine.NewConversation(), question)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(ans.Text)

			if showSources && len(ans.Sources) > 0 {
				fmt.Println("\nSources:")
				for _, src := range ans.Sources {
					fmt.Printf("  %s (chunk %d, distance %.3f)\n", src.Path, src.Ordinal, src.Distance)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the source documents the answer was grounded on")

	return cmd
}
