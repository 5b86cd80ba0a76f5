package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/server"
	"github.com/54b3r/docqa-go/internal/store"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// server exposing the question-answering pipeline.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP server",
		Long: `Start the docqa HTTP server on localhost.

The server exposes POST /v1/run for document question answering, plus
health, readiness, and Prometheus metrics endpoints.

Examples:
  docqa serve
  docqa serve --port 9090
  EMBEDDING_PROVIDER=openai docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			host, port := resolveBind(host, port,
				cmd.Flags().Changed("host"), cmd.Flags().Changed("port"))

			log.Info("serve starting", slog.String("embedding_provider", os.Getenv("EMBEDDING_PROVIDER")))

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			p, pool, err := buildPipeline(emb)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("pipeline initialised", slog.Int("api_keys", pool.Size()))

			// Open answer history store. DOCQA_HISTORY_DB overrides the
			// default path (~/.docqa/history.db). Set to "disabled" to disable.
			var historyStore store.AnswerStore
			dbPath := os.Getenv("DOCQA_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = store.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := store.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via DOCQA_HISTORY_DB=disabled")
			}

			fetcher := document.NewFetcher(document.FetcherConfig{})

			baseURL := os.Getenv("A4F_BASE_URL")
			if baseURL == "" {
				baseURL = answer.DefaultBaseURL
			}
			providerName := os.Getenv("EMBEDDING_PROVIDER")
			if providerName == "" {
				providerName = "ollama"
			}
			pingers := []server.Pinger{
				server.NewEmbedderPinger(emb, providerName),
				server.NewUpstreamPinger(baseURL, pool),
			}

			// One-shot startup probe. Failures are logged but not fatal:
			// dependencies may come up after the server does, and
			// /api/ready keeps reporting their state.
			if err := server.NewMultiPinger(pingers...).Ping(ctx); err != nil {
				log.Warn("startup dependency probe failed", slog.Any("error", err))
			} else {
				log.Info("all dependencies reachable")
			}

			srv, err := server.New(p, fetcher, historyStore, &server.Config{
				Host:    host,
				Port:    port,
				Logger:  log,
				Pingers: pingers,
				APIKey:  os.Getenv("DOCQA_API_KEY"),
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
