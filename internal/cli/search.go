package semsearch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mwiater/semsearch/internal/search"
	"github.com/mwiater/semsearch/internal/tui"
)

var (
	searchK           int
	searchScores      bool
	searchContext     bool
	searchInteractive bool
)

// runTUI starts the interactive screen. Tests replace it.
var runTUI = tui.Run

var searchCmd = &cobra.Command{
	Use:     "search [query]",
	Short:   "Search the index for chunks similar to a query",
	Example: `  semsearch search "what is deep learning?" -k 5
  semsearch search "backpropagation" --scores
  semsearch search --interactive`,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query == "" && !searchInteractive {
			return fmt.Errorf("a query is required unless --interactive is set")
		}
		out := cmd.OutOrStdout()
		engine, err := openLoadedEngine(cmd.Context(), out)
		if err != nil {
			return err
		}
		defer engine.Close()

		if searchInteractive {
			return runTUI(cmd.Context(), engine, engine.Config().ClampTopK(searchK))
		}

		fmt.Fprintf(out, "\nSearching for: %s\n\n", query)
		switch {
		case searchContext:
			return printContext(cmd.Context(), out, engine, query, searchK)
		case searchScores:
			return printScored(cmd.Context(), out, engine, query, searchK, 300)
		default:
			return printResults(cmd.Context(), out, engine, query, searchK, 500)
		}
	},
}

func printResults(ctx context.Context, out io.Writer, engine *search.Engine, query string, k, preview int) error {
	results, err := engine.Search(ctx, query, k)
	if err != nil {
		failure(out, "Search failed: %v", err)
		return err
	}
	if len(results) == 0 {
		warn(out, "No results found.")
		return nil
	}
	rule := strings.Repeat("=", 80)
	for i, doc := range results {
		fmt.Fprintln(out, rule)
		fmt.Fprintf(out, "Result %d\n", i+1)
		fmt.Fprintln(out, search.Preview(doc.Content, preview))
		fmt.Fprintf(out, "\nSource: %s\n", doc.Source())
		fmt.Fprintln(out, rule)
	}
	return nil
}

func printScored(ctx context.Context, out io.Writer, engine *search.Engine, query string, k, preview int) error {
	results, err := engine.SearchWithScores(ctx, query, k)
	if err != nil {
		failure(out, "Search failed: %v", err)
		return err
	}
	fmt.Fprintf(out, "Found %d results with scores\n", len(results))
	for i, r := range results {
		fmt.Fprintf(out, "\nResult %d (Score: %.4f)\n", i+1, r.Score)
		fmt.Fprintln(out, search.Preview(r.Content, preview))
		fmt.Fprintf(out, "Source: %s\n", r.Source())
	}
	return nil
}

func printContext(ctx context.Context, out io.Writer, engine *search.Engine, query string, k int) error {
	results, err := engine.SearchWithScores(ctx, query, k)
	if err != nil {
		failure(out, "Search failed: %v", err)
		return err
	}
	text, tokens, sources := search.FormatContext(results, engine.Config().Search.ContextTokenLimit)
	if text == "" {
		warn(out, "No results found.")
		return nil
	}
	fmt.Fprintln(out, text)
	fmt.Fprintf(out, "\n~%d tokens from %d sources\n", tokens, sources)
	return nil
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "k", "k", 0, "number of results (defaults to search.topK)")
	searchCmd.Flags().BoolVar(&searchScores, "scores", false, "show similarity scores")
	searchCmd.Flags().BoolVar(&searchContext, "context", false, "print results as a token-bounded context block")
	searchCmd.Flags().BoolVarP(&searchInteractive, "interactive", "i", false, "open the interactive search screen")
	rootCmd.AddCommand(searchCmd)
}
