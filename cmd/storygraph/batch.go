package main

import (
	"fmt"
	"path/filepath"

	"github.com/OFFIS-RIT/storygraph/internal/app"
	"github.com/OFFIS-RIT/storygraph/internal/timing"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	"github.com/OFFIS-RIT/storygraph/pkg/logger"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch <novel> [chapters...]",
	Short: "Extract several chapters of a novel in parallel",
	Long: `Batch extracts the given chapters, or every chapter of the novel, with
BATCH_WORKERS parallel workers. Interrupting the command lets running chapters
finish and skips the rest.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	addExtractionFlags(batchCmd)
	batchCmd.Flags().Int("workers", 0, "parallel chapters (default: BATCH_WORKERS)")
	batchCmd.Flags().String("out-dir", "", "write one <chapter>.json per chapter into this directory")
	batchCmd.Flags().Bool("export", false, "write every graph to Neo4j")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	novelID := args[0]
	export, _ := cmd.Flags().GetBool("export")
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Batch.Workers = workers
	}

	a, err := openApp(cmd, app.Options{Export: export})
	if err != nil {
		return err
	}
	defer a.Close()
	if export && a.Exporter == nil {
		return fmt.Errorf("--export needs NEO4J_URI")
	}

	ctx := cmd.Context()
	chapters := args[1:]
	if len(chapters) == 0 {
		chapters, err = a.Source.Chapters(ctx, novelID)
		if err != nil {
			return err
		}
	}

	configs := make([]common.ExtractionConfig, 0, len(chapters))
	runes := 0
	for _, ch := range chapters {
		text, err := a.Source.Text(ctx, novelID, ch)
		if err != nil {
			return err
		}
		c, err := chapterConfig(cmd, a, novelID, ch, text)
		if err != nil {
			return err
		}
		runes += len([]rune(text))
		configs = append(configs, c)
	}

	if a.Timing != nil {
		if d, err := a.Timing.PredictExtractionTime(ctx, a.Client.Identity().Model, runes); err == nil && d > 0 {
			logger.Info("[Batch] estimated duration", "chapters", len(configs), "estimate", d)
		}
	}

	outDir, _ := cmd.Flags().GetString("out-dir")
	report := a.Scheduler().Run(ctx, configs, func(r graph.ChapterResult) {
		if r.Skipped || r.Err != nil || r.Result == nil {
			return
		}
		res := r.Result
		if a.Timing != nil && !res.FromCache && !res.Cancelled {
			sample := timing.Sample{
				NovelID:   r.NovelID,
				ChapterID: r.ChapterID,
				Model:     a.Client.Identity().Model,
				Runes:     len([]rune(configs[r.Index].Text)),
				Windows:   res.Stats.Windows,
				Status:    res.Status,
				Duration:  res.Duration,
			}
			if err := a.Timing.AddExtractionTime(ctx, sample); err != nil {
				logger.Warn("[Batch] failed to record extraction time", "chapter", r.ChapterID, "err", err)
			}
		}
		if outDir != "" {
			path := filepath.Join(outDir, r.ChapterID+".json")
			if err := writeJSON(nil, path, res.Document); err != nil {
				logger.Error("[Batch] failed to write graph", "chapter", r.ChapterID, "err", err)
			}
		}
		if export && !r.Failed() {
			if err := a.Exporter.Export(ctx, r.NovelID, r.ChapterID, res.Document); err != nil {
				logger.Error("[Batch] export failed", "chapter", r.ChapterID, "err", err)
			}
		}
	})

	w := cmd.OutOrStdout()
	for _, r := range report.Results {
		switch {
		case r.Skipped:
			fmt.Fprintf(w, "%-20s skipped\n", r.ChapterID)
		case r.Err != nil:
			fmt.Fprintf(w, "%-20s error: %v\n", r.ChapterID, r.Err)
		default:
			fmt.Fprintf(w, "%-20s status=%d cached=%t nodes=%d relationships=%d %s\n",
				r.ChapterID, r.Result.Status, r.Result.FromCache,
				len(r.Result.Document.Nodes), len(r.Result.Document.Relationships), r.Result.Duration)
		}
	}
	completed, failed, skipped := report.Counts()
	fmt.Fprintf(w, "\n%d/%d completed, %d failed, %d skipped in %s (%d%%)\n",
		completed, len(report.Results), failed, skipped,
		report.Finished.Sub(report.Started), report.Progress().Percentage)

	if failed > 0 {
		return fmt.Errorf("%d chapters failed", failed)
	}
	if report.Cancelled {
		return ctx.Err()
	}
	return nil
}
