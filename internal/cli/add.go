package semsearch

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mwiater/semsearch/internal/document"
)

var (
	addText  string
	addFile  string
	addTitle string
)

// addCmd indexes one more document into the existing index.
var addCmd = &cobra.Command{
	Use:     "add",
	Short:   "Add a text snippet or a file to the index",
	Example: `  semsearch add --text "Deep learning uses layered neural networks." --title notes
  semsearch add --file guide.md`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (addText == "") == (addFile == "") {
			return fmt.Errorf("exactly one of --text or --file must be provided")
		}
		out := cmd.OutOrStdout()
		engine, err := openEngine(cmd.Context(), out)
		if err != nil {
			return err
		}
		defer engine.Close()
		if err := engine.LoadIndex(cmd.Context()); err != nil {
			warn(out, "No existing index loaded, a new one will be built")
		}

		var docs []document.Document
		if addText != "" {
			docs = []document.Document{document.FromText(addText, addTitle)}
		} else {
			docs, err = engine.LoadDocuments(addFile, "")
			if err != nil {
				failure(out, "Failed to load %s: %v", addFile, err)
				return err
			}
			if addTitle != "" {
				document.SetSource(docs, addTitle)
			}
		}

		res, err := engine.AddDocuments(cmd.Context(), docs)
		if err != nil {
			reportIndexError(out, err)
			return err
		}
		if addFile != "" {
			success(out, "File uploaded! Created %d chunks from %d pages.", res.Chunks, res.Documents)
		} else {
			success(out, "Document uploaded! Created %d chunks.", res.Chunks)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().StringVarP(&addText, "text", "t", "", "text content to index")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "file to index (.pdf, .txt, .md)")
	addCmd.Flags().StringVar(&addTitle, "title", "", "title stored as the document source")
	rootCmd.AddCommand(addCmd)
}
