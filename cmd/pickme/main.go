// Command pickme is the entry point for the PickMe investor assistant.
// It answers investor questions grounded on the company's private document
// corpus, via a CLI (Cobra) or an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/fahammohmd/pickme-go/cmd/pickme/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
