package semsearch

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	demoFile  string
	demoQuery string
)

// demoCmd runs the whole pipeline once: load, build, info, search.
var demoCmd = &cobra.Command{
	Use:     "demo",
	Short:   "Index a document and run example searches against it",
	Example: `  semsearch demo --file "data/Fundamentals of Deep Learning.pdf"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		engine, err := openEngine(ctx, out)
		if err != nil {
			return err
		}
		defer engine.Close()

		fmt.Fprintln(out, "Loading docs...")
		docs, err := engine.LoadDocuments(demoFile, "")
		if err != nil {
			failure(out, "Failed to load documents: %v", err)
			return err
		}

		fmt.Fprintln(out, "Building index...")
		if _, err := engine.BuildIndex(ctx, docs); err != nil {
			reportIndexError(out, err)
			return err
		}

		info, err := engine.CollectionInfo(ctx)
		if err != nil {
			failure(out, "Failed to get index info: %v", err)
			return err
		}
		printInfo(out, info)

		fmt.Fprintf(out, "\nSearching for: %s\n\n", demoQuery)
		if err := printResults(ctx, out, engine, demoQuery, 5, 500); err != nil {
			return err
		}

		rule := strings.Repeat("=", 80)
		fmt.Fprintf(out, "\n%s\nSEARCH WITH SCORES\n%s\n\n", rule, rule)
		return printScored(ctx, out, engine, demoQuery, 3, 300)
	},
}

func init() {
	demoCmd.Flags().StringVarP(&demoFile, "file", "f", "data/Fundamentals of Deep Learning.pdf", "document to index")
	demoCmd.Flags().StringVarP(&demoQuery, "query", "q", "what is deep learning?", "query to run")
	rootCmd.AddCommand(demoCmd)
}
