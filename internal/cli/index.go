package semsearch

import (
	"fmt"
	"io"
	"strings"

	"github.com/k0kubun/pp"
	"github.com/spf13/cobra"

	"github.com/mwiater/semsearch/internal/search"
)

var (
	buildFile string
	buildDir  string
	infoRaw   bool
)

// initCmd checks the embedding provider and makes sure the index exists.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the search engine and create the index if needed",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer engine.Close()
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build, inspect, or delete the vector index",
}

var indexBuildCmd = &cobra.Command{
	Use:     "build",
	Short:   "Load documents, split them into chunks, embed and upsert them",
	Example: `  semsearch index build --file "data/Fundamentals of Deep Learning.pdf"
  semsearch index build --dir data/`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildFile == "" && buildDir == "" {
			return fmt.Errorf("either --file or --dir must be provided")
		}
		out := cmd.OutOrStdout()
		engine, err := openEngine(cmd.Context(), out)
		if err != nil {
			return err
		}
		defer engine.Close()

		fmt.Fprintln(out, "Loading docs...")
		docs, err := engine.LoadDocumentsWithProgress(buildFile, buildDir, func(done, total int, path string) {
			fmt.Fprintf(out, "  [%d/%d] %s\n", done, total, path)
		})
		if err != nil {
			failure(out, "Failed to load documents: %v", err)
			return err
		}
		success(out, "Loaded %d documents", len(docs))

		fmt.Fprintln(out, "Building index...")
		res, err := engine.BuildIndex(cmd.Context(), docs)
		if err != nil {
			reportIndexError(out, err)
			return err
		}
		success(out, "Indexed %d chunks from %d documents", res.Upserted, res.Documents)
		return nil
	},
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show collection info for the current index",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		engine, err := openLoadedEngine(cmd.Context(), out)
		if err != nil {
			return err
		}
		defer engine.Close()

		info, err := engine.CollectionInfo(cmd.Context())
		if err != nil {
			failure(out, "Failed to get index info: %v", err)
			return err
		}
		if infoRaw {
			pp.Fprintln(out, info)
			return nil
		}
		printInfo(out, info)
		return nil
	},
}

var indexDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete the index and every stored vector",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		engine, err := openEngine(cmd.Context(), out)
		if err != nil {
			return err
		}
		defer engine.Close()

		deleted, err := engine.DeleteIndex(cmd.Context())
		if err != nil {
			failure(out, "Failed to delete index: %v", err)
			return err
		}
		cfg := engine.Config()
		if deleted {
			success(out, "Deleted index: %s", cfg.VectorStore.IndexName)
		} else {
			warn(out, "Index %s does not exist", cfg.VectorStore.IndexName)
		}
		return nil
	},
}

func printInfo(out io.Writer, info search.Info) {
	section(out, "Collection info")
	rows := [][2]string{
		{"Index Name", info.IndexName},
		{"Total Vectors", fmt.Sprintf("%d", info.TotalVectorCount)},
		{"Dimension", fmt.Sprintf("%d", info.Dimension)},
		{"Metric", info.Metric},
		{"Backend", info.Backend},
		{"Model", info.Model},
	}
	if info.Backend != "sqlite" {
		rows = append(rows, [2]string{"Cloud", strings.ToUpper(info.Cloud)}, [2]string{"Region", info.Region})
	}
	for _, r := range rows {
		fmt.Fprintf(out, "  %-14s %s\n", r[0]+":", r[1])
	}
}

func init() {
	indexBuildCmd.Flags().StringVarP(&buildFile, "file", "f", "", "document to index (.pdf, .txt, .md)")
	indexBuildCmd.Flags().StringVarP(&buildDir, "dir", "d", "", "directory of documents to index")
	indexInfoCmd.Flags().BoolVar(&infoRaw, "raw", false, "dump the raw info structure")

	indexCmd.AddCommand(indexBuildCmd, indexInfoCmd, indexDeleteCmd)
	rootCmd.AddCommand(initCmd, indexCmd)
}
