package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fahammohmd/pickme-go/internal/engine"
	"github.com/fahammohmd/pickme-go/internal/logging"
)

// NewChatCmd constructs the `pickme chat` command: an interactive REPL that
// keeps conversation context across questions within the session.
func NewChatCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive Q&A session",
		Long: `Start an interactive session with the investor assistant.

Each question is answered with context from the document corpus; follow-up
questions see the earlier turns of the session. The session is in-memory
only — quitting forgets the conversation.

Type 'exit' or press Ctrl-D to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mgr, emb, err := openIndex(ctx, false, log)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			eng, err := buildEngine(ctx, mgr, emb)
			if err != nil {
				return fmt.Errorf("chat: %w", err)
			}

			conv := engine.NewConversation()
			scanner := bufio.NewScanner(os.Stdin)

			fmt.Println("PickMe investor assistant. Type 'exit' to quit.")
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					fmt.Println()
					break
				}
				question := strings.TrimSpace(scanner.Text())
				if question == "" {
					continue
				}
				if question == "exit" || question == "quit" {
					break
				}

				ans, err := eng.Ask(ctx, conv, question)
				if err != nil {
					fmt.Fprintf(os.Stderr, "error: %v\n", err)
					continue
				}

				fmt.Println(ans.Text)
				if showSources && len(ans.Sources) > 0 {
					fmt.Println("\nSources:")
					for _, src := range ans.Sources {
						fmt.Printf("  %s (chunk %d, distance %.3f)\n", src.Path, src.Ordinal, src.Distance)
					}
				}
				fmt.Println()
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("chat: read input: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "Print the source documents after each answer")

	return cmd
}
