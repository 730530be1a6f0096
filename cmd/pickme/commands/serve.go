package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/fahammohmd/pickme-go/internal/embedder"
	"github.com/fahammohmd/pickme-go/internal/logging"
	"github.com/fahammohmd/pickme-go/internal/provider"
	"github.com/fahammohmd/pickme-go/internal/server"
	"github.com/fahammohmd/pickme-go/internal/tracing"
)

// NewServeCmd constructs the `pickme serve` command, which opens the index
// and starts the HTTP API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the investor assistant HTTP API",
		Long: `Start the pickme HTTP server.

The server opens the document index at startup (reuse or rebuild, decided
by the corpus fingerprint) and then exposes:

  POST /api/ask     answer a question within a session
  GET  /api/index   index state and fingerprint
  GET  /api/health  liveness
  GET  /api/ready   readiness (index + model backend probes)
  GET  /metrics     Prometheus metrics

Examples:
  pickme serve
  pickme serve --port 9090
  MODEL_PROVIDER=azure pickme serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			mgr, emb, err := openIndex(ctx, false, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("index opened",
				slog.String("state", string(mgr.State())),
				slog.String("fingerprint", shortFingerprint(mgr.Fingerprint())),
			)

			eng, err := buildEngine(ctx, mgr, emb)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(eng, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Index:   mgr,
				Pingers: buildPingers(mgr),
				APIKey:  os.Getenv("PICKME_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

// buildPingers assembles the readiness probes: the index lifecycle plus an
// HTTP probe of the embedding backend when it is a local Ollama instance.
func buildPingers(mgr server.IndexStatus) []server.Pinger {
	pingers := []server.Pinger{server.NewIndexPinger(mgr)}

	embCfg := embedder.ConfigFromEnv()
	if embCfg.Provider == "ollama" {
		pingers = append(pingers, server.NewHTTPPinger("ollama", embCfg.Endpoint))
	}
	if provider.ConfigFromEnv().Backend == provider.BackendOllama {
		host := envOrDefault("OLLAMA_HOST", "http://localhost:11434")
		if embCfg.Provider != "ollama" || embCfg.Endpoint != host {
			pingers = append(pingers, server.NewHTTPPinger("ollama-llm", host))
		}
	}
	return pingers
}
