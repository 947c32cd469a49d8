package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veriscope/internal/pipeline"
	"github.com/ppiankov/veriscope/internal/worker"
)

var (
	seedsFile    string
	buildDepth   int
	buildWorkers int
	buildPages   int
	indexPath    string
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build [seed-url...]",
	Short: "Crawl seed sites and build the embedding index",
	Long: `Build crawls every seed site, splits the article pages into overlapping
sentence windows, embeds them and writes a new index. The new index replaces
the previous one.

Seeds are read from the seeds file (one URL or host per line, # comments)
unless seed URLs are given as arguments.

Example:
  veriscope build --seeds seeds.txt
  veriscope build https://www.yna.co.kr https://www.hani.co.kr --max-depth 1`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&seedsFile, "seeds", "", "seeds file (default from config)")
	buildCmd.Flags().IntVar(&buildDepth, "max-depth", 0, "link depth to follow from each seed (default from config)")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 0, "concurrent seed crawls (default from config)")
	buildCmd.Flags().IntVar(&buildPages, "max-pages", 0, "page budget per seed site (default from config)")
	buildCmd.Flags().StringVar(&indexPath, "index", "", "index file path (default from config)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if buildDepth > 0 {
		cfg.Crawl.MaxDepth = buildDepth
	}
	if buildWorkers > 0 {
		cfg.Crawl.Workers = buildWorkers
	}
	if buildPages > 0 {
		cfg.Crawl.MaxPagesPerDomain = buildPages
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}

	seeds := args
	if len(seeds) == 0 {
		file := seedsFile
		if file == "" {
			file = cfg.Crawl.SeedsFile
		}
		var err error
		seeds, err = worker.ReadURLsFromFile(file)
		if err != nil {
			return fmt.Errorf("read seeds: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "⚙️  Building index from %d seeds (depth %d, %d workers)...\n",
		len(seeds), cfg.Crawl.MaxDepth, cfg.Crawl.Workers)

	p, err := pipeline.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer p.Close()

	stats, err := p.BuildIndex(ctx, seeds)
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Crawled %d/%d seeds, %d pages\n", stats.Seeds-stats.FailedSeeds, stats.Seeds, stats.Pages)
	fmt.Fprintf(os.Stderr, "✓ Embedded %d chunks into %d rows in %v\n", stats.Chunks, stats.Rows, stats.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "✓ Wrote index (%s): %s\n", cfg.Index.Backend, indexLocation())
	return nil
}

func indexLocation() string {
	if cfg.Index.Backend == "sqlite" {
		return cfg.Store.Path
	}
	return cfg.Index.Path
}
