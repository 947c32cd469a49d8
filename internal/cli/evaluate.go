package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/pipeline"
)

var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	noFooter    bool
	queryText   string
	textFile    string
	imageText   bool
	queryTitle  string
	minChars    int
	simFloor    float64
	nliBatch    int
	noGrow      bool
	insecureTLS bool
)

// evaluateCmd represents the evaluate command
var evaluateCmd = &cobra.Command{
	Use:     "evaluate [url]",
	Aliases: []string{"eval"},
	Short:   "Evaluate the credibility of one article",
	Long: `Evaluate fetches an article (or takes its text), retrieves similar passages
from the index, checks them with the NLI model and prints a reliability score
with the supporting evidence.

Text recognised from an image by an external OCR service can be evaluated
with --image, which lowers the minimum text length.

Example:
  veriscope evaluate https://n.news.naver.com/article/001/0014000000
  veriscope evaluate --text-file article.txt --json report.json --md report.md
  veriscope evaluate --text "$(cat ocr.txt)" --image`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	// Input flags
	evaluateCmd.Flags().StringVar(&queryText, "text", "", "article text to evaluate instead of a URL")
	evaluateCmd.Flags().StringVar(&textFile, "text-file", "", "read the article text from a file")
	evaluateCmd.Flags().BoolVar(&imageText, "image", false, "the text was recognised from an image")
	evaluateCmd.Flags().StringVar(&queryTitle, "title", "", "title for text queries")

	// Output flags
	evaluateCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	evaluateCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	evaluateCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Tuning flags
	evaluateCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall evaluation timeout")
	evaluateCmd.Flags().IntVar(&minChars, "min-chars", 0, "minimum article length (default depends on the input)")
	evaluateCmd.Flags().Float64Var(&simFloor, "similarity-floor", 0, "cosine similarity floor (default from config)")
	evaluateCmd.Flags().IntVar(&nliBatch, "nli-batch", 0, "NLI batch size (default from config)")
	evaluateCmd.Flags().BoolVar(&noGrow, "no-grow", false, "do not add the evaluated article to the index")
	evaluateCmd.Flags().BoolVar(&insecureTLS, "insecure", false, "skip TLS certificate verification")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(args)
	if err != nil {
		return err
	}
	if noGrow {
		cfg.Index.Grow = false
	}
	if insecureTLS {
		cfg.HTTP.InsecureTLS = true
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	p, err := pipeline.NewPipeline(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer p.Close()

	if verbose {
		target := q.URL
		if target == "" {
			target = fmt.Sprintf("%s text, %d bytes", q.Source, len(q.Text))
		}
		fmt.Fprintf(os.Stderr, "⚙️  Evaluating: %s\n", target)
	}

	res := p.Evaluator.Evaluate(ctx, q)

	renderer := pipeline.NewRenderer(!noFooter)
	renderer.Summary(os.Stdout, res)
	if err := renderer.RenderFiles(res, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if !res.OK() {
		return fmt.Errorf("evaluation failed: %s", res.Failure.Kind)
	}
	return nil
}

// buildQuery turns the arguments and input flags into a query. Exactly one
// of a URL, --text and --text-file is accepted.
func buildQuery(args []string) (pipeline.Query, error) {
	q := pipeline.Query{
		Title:           queryTitle,
		MinChars:        minChars,
		SimilarityFloor: simFloor,
		NLIBatchSize:    nliBatch,
	}

	inputs := 0
	if len(args) == 1 {
		q.URL = args[0]
		inputs++
	}
	if queryText != "" {
		q.Text = queryText
		inputs++
	}
	if textFile != "" {
		data, err := os.ReadFile(textFile)
		if err != nil {
			return q, fmt.Errorf("read text file: %w", err)
		}
		q.Text = string(data)
		inputs++
	}
	if inputs != 1 {
		return q, fmt.Errorf("give exactly one of a URL, --text or --text-file")
	}

	if q.Text != "" {
		q.Source = model.SourceText
		if imageText {
			q.Source = model.SourceImage
		}
	}
	return q, nil
}
