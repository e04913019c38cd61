package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noterag/noterag/internal/index"
	"github.com/noterag/noterag/internal/logging"
	"github.com/noterag/noterag/internal/output"
	"github.com/noterag/noterag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	mode     string
	vault    string
	category string
	person   string
	limit    int
	rerank   bool
	expand   bool
	jsonOut  bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed notes",
		Long: `Search the notes using hybrid retrieval.

Combines keyword (BM25) and semantic (embedding) search with
Reciprocal Rank Fusion. Mode 'query' adds LLM query expansion and
reranking for the highest quality at higher latency.

Examples:
  noterag search "quarterly planning"
  noterag search "database migration" --vault work --limit 5
  noterag search "standup blockers" --mode query --person sarah
  noterag search "travel ideas" --vault personal --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "hybrid", "Search mode: vector, bm25, hybrid, or query")
	cmd.Flags().StringVar(&opts.vault, "vault", "all", "Vault to search: work, personal, or all")
	cmd.Flags().StringVar(&opts.category, "category", "", "Filter by note category (e.g. meeting, 1on1)")
	cmd.Flags().StringVar(&opts.person, "person", "", "Filter to notes that mention a person")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (0 uses the config default)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", true, "Rerank with the LLM judge in query mode")
	cmd.Flags().BoolVar(&opts.expand, "expand", true, "Expand the query with the LLM in query mode")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.WriteToStderr = false
		if _, cleanup, err := logging.Setup(logCfg); err == nil {
			defer cleanup()
		}
	}

	sOpts, err := buildSearchOptions(opts)
	if err != nil {
		return err
	}

	e, err := openEngine()
	if err != nil {
		return err
	}
	defer e.Close()

	slog.Info("search_started",
		slog.String("query", query),
		slog.String("mode", string(sOpts.Mode)),
		slog.String("vault", string(sOpts.Vault)))

	results, err := e.searcher.Search(ctx, query, sOpts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	if opts.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return formatResults(output.New(cmd.OutOrStdout()), query, results)
}

// buildSearchOptions validates the flag values into search options.
func buildSearchOptions(opts searchOptions) (search.Options, error) {
	sOpts := search.NewOptions()

	mode, err := search.ParseMode(opts.mode)
	if err != nil {
		return sOpts, err
	}
	vault, err := index.ParseVault(opts.vault)
	if err != nil {
		return sOpts, err
	}

	sOpts.Mode = mode
	sOpts.Vault = vault
	sOpts.Category = opts.category
	sOpts.Person = opts.person
	sOpts.Limit = opts.limit
	sOpts.Rerank = opts.rerank
	sOpts.ExpandQuery = opts.expand
	return sOpts, nil
}

// formatResults outputs results in human-readable form.
func formatResults(out *output.Writer, query string, results []*search.Result) error {
	if len(results) == 0 {
		out.Statusf("", "No results found for %q", query)
		return nil
	}

	out.Statusf("🔍", "Found %d results for %q:", len(results), query)
	out.Newline()

	for i, r := range results {
		out.Statusf("", "%d. %s%s (score: %.2f)", i+1, r.Title, resultTags(r), r.Score)
		out.Status("", "   "+r.FilePath)
		for _, line := range excerptLines(r.Excerpt, 3) {
			out.Status("", "   "+line)
		}
		out.Newline()
	}
	return nil
}

// resultTags renders the metadata suffix: date, vault/category, people.
func resultTags(r *search.Result) string {
	var b strings.Builder
	if r.Date != "" {
		fmt.Fprintf(&b, " (%s)", r.Date)
	}
	switch {
	case r.Category != "":
		fmt.Fprintf(&b, " [%s/%s]", r.Vault, r.Category)
	case r.Vault != "":
		fmt.Fprintf(&b, " [%s]", r.Vault)
	}
	if len(r.People) > 0 {
		fmt.Fprintf(&b, " with %s", strings.Join(r.People, ", "))
	}
	return b.String()
}

// excerptLines returns the first n non-empty lines of an excerpt.
func excerptLines(excerpt string, n int) []string {
	var lines []string
	for _, line := range strings.Split(excerpt, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return lines
}
