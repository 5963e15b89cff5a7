package main

import (
	"fmt"
	"os"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/source"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <novel> <chapter>",
	Short: "Extract the graph of one chapter",
	Long: `Extract reads a chapter from the text source (or --file), extracts its graph
and prints it as JSON. A cached graph is reused unless --no-cache is set.`,
	Args: cobra.ExactArgs(2),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().String("file", "", "read the chapter text from this file instead of the text source")
	extractCmd.Flags().String("out", "", "write the graph to this file instead of stdout")
	addExtractionFlags(extractCmd)
	extractCmd.Flags().Bool("verbose", false, "log every oracle call")

	rootCmd.AddCommand(extractCmd)
}

// addExtractionFlags registers the flags shared by extract and batch.
func addExtractionFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "schema name (default: SCHEMA_DEFAULT)")
	cmd.Flags().Int("chunk-size", 0, "window size in characters (default: CHUNK_SIZE)")
	cmd.Flags().Int("chunk-overlap", -1, "window overlap in characters (default: CHUNK_OVERLAP)")
	cmd.Flags().Bool("no-cache", false, "neither read nor write the cache")
	cmd.Flags().Bool("optimize", false, "reduce hub nodes in the returned graph")
}

// chapterConfig applies the extraction flags to the configured defaults.
func chapterConfig(cmd *cobra.Command, a *app.App, novelID, chapterID, text string) (common.ExtractionConfig, error) {
	name, _ := cmd.Flags().GetString("schema")
	if name == "" {
		name = cfg.Extract.DefaultSchema
	}
	schema, err := a.Catalog.Resolve(name)
	if err != nil {
		return common.ExtractionConfig{}, err
	}

	c := a.ChapterConfig(novelID, chapterID, text, schema)
	if size, _ := cmd.Flags().GetInt("chunk-size"); size > 0 {
		c.ChunkSize = size
	}
	if overlap, _ := cmd.Flags().GetInt("chunk-overlap"); overlap >= 0 {
		c.ChunkOverlap = overlap
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		c.UseCache = false
	}
	if opt, _ := cmd.Flags().GetBool("optimize"); opt {
		p := cfg.Optimize.Params()
		c.Optimize = &p
	}
	return c, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	novelID, chapterID := args[0], args[1]
	a, err := openApp(cmd, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	var text string
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		text = source.CleanText(string(raw))
	} else {
		text, err = a.Source.Text(ctx, novelID, chapterID)
		if err != nil {
			return err
		}
	}

	c, err := chapterConfig(cmd, a, novelID, chapterID, text)
	if err != nil {
		return err
	}
	c.Verbose, _ = cmd.Flags().GetBool("verbose")

	res, err := a.Client.Extract(ctx, c)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "key=%s status=%d cached=%t cancelled=%t nodes=%d relationships=%d duration=%s\n",
		res.CacheKey, res.Status, res.FromCache, res.Cancelled,
		len(res.Document.Nodes), len(res.Document.Relationships), res.Duration)

	out, _ := cmd.Flags().GetString("out")
	return writeJSON(cmd.OutOrStdout(), out, res.Document)
}
