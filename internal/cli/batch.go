package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veriscope/internal/pipeline"
	"github.com/ppiankov/veriscope/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	// noFooter and noGrow are defined in evaluate.go and shared here
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Evaluate multiple article URLs from a file in parallel",
	Long: `Batch evaluates many article URLs concurrently:
- Read URLs from the input file (one per line, # comments, duplicates dropped)
- Evaluate URLs in parallel with a configurable worker count
- Write a JSON and a Markdown report for each URL

Example:
  veriscope batch urls.txt
  veriscope batch urls.txt --concurrency 4 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./veriscope-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().BoolVar(&noGrow, "no-grow", false, "do not add evaluated articles to the index")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	if noGrow {
		cfg.Index.Grow = false
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Veriscope Batch Evaluation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	urls, err := worker.ReadURLsFromFile(file)
	if err != nil {
		return fmt.Errorf("read urls: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d URLs\n", len(urls))

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, err := pipeline.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer p.Close()

	fmt.Fprintf(os.Stderr, "⚙️  Evaluating URLs with %d workers...\n\n", concurrency)
	processor := worker.NewBatchProcessor(p.Evaluator, concurrency)
	results := processor.ProcessURLs(ctx, urls)

	renderer := pipeline.NewRenderer(!noFooter)
	successCount, failureCount := 0, 0
	for _, r := range results {
		if err := r.GetError(); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.URL, err)
			continue
		}
		successCount++

		base := filepath.Join(outputDir, fmt.Sprintf("%03d-%s", r.Index+1, sanitizeFilename(r.URL)))
		if err := renderer.RenderFiles(r.Result, base+".json", base+".md", false); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write report: %v\n", r.URL, err)
			continue
		}
		rep := r.Result.Report
		fmt.Fprintf(os.Stderr, "✓ %s (%d%%, %s, %d evidence)\n", r.URL, rep.Score.Percent, rep.Score.Level.Label(), len(rep.Evidence))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d URLs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

var filenameReplacer = strings.NewReplacer(
	"https://", "",
	"http://", "",
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"&", "_",
	"=", "_",
	" ", "-",
)

// sanitizeFilename turns a URL into a safe file name
func sanitizeFilename(s string) string {
	s = strings.Trim(filenameReplacer.Replace(s), "_.-")
	if s == "" {
		s = "report"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
