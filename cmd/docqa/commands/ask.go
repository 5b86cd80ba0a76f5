package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/document"
	"github.com/54b3r/docqa-go/internal/embedder"
	"github.com/54b3r/docqa-go/internal/logging"
)

// NewAskCmd constructs the `docqa ask` command, which answers one or more
// questions about a document in a single run and prints the answers.
func NewAskCmd() *cobra.Command {
	var doc string

	cmd := &cobra.Command{
		Use:   "ask --document <url-or-file> [question]...",
		Short: "Answer questions about a document",
		Long: `Answer natural language questions about a document.

The document is given by URL (fetched over HTTP) or local file path, and
each positional argument is one question. Answers print in question order;
degraded answers (where generation failed) are marked.

Examples:
  docqa ask --document https://example.com/handbook.html "what is the refund policy?"
  docqa ask --document ./notes.txt "who is the project lead?" "when is the deadline?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if doc == "" {
				return fmt.Errorf("ask: --document is required")
			}

			text, err := loadDocument(cmd, doc)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ask: failed to initialise embedder: %w", err)
			}

			p, _, err := buildPipeline(emb)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			answers, err := p.Run(ctx, text, args)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			for i, a := range answers {
				marker := ""
				if a.Degraded {
					marker = " [degraded]"
				}
				fmt.Fprintf(out, "Q%d: %s\nA%d:%s %s\n\n", i+1, args[i], i+1, marker, a.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&doc, "document", "d", "", "Document URL or local file path")

	return cmd
}

// loadDocument resolves the --document flag: URLs are fetched over HTTP,
// anything else is read as a local file. Both paths get the same text
// cleaning.
func loadDocument(cmd *cobra.Command, doc string) (string, error) {
	if strings.HasPrefix(doc, "http://") || strings.HasPrefix(doc, "https://") {
		fetcher := document.NewFetcher(document.FetcherConfig{})
		text, err := fetcher.Fetch(cmd.Context(), doc)
		if err != nil {
			return "", fmt.Errorf("fetching document: %w", err)
		}
		return text, nil
	}

	data, err := os.ReadFile(doc)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	return document.Clean(string(data)), nil
}
