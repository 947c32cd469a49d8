package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// Renderer writes evaluation results as JSON, Markdown or a terminal summary
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer. The footer is a short note that scores
// are heuristic.
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// JSON writes the result as indented JSON
func (r *Renderer) JSON(w io.Writer, res model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(res); err != nil {
		return eris.Wrap(err, "render: json")
	}
	return nil
}

// Markdown writes a human-readable report
func (r *Renderer) Markdown(w io.Writer, res model.Result) error {
	var b strings.Builder
	if !res.OK() {
		b.WriteString("# Evaluation failed\n\n")
		fmt.Fprintf(&b, "- **Kind:** %s\n", res.Failure.Kind)
		fmt.Fprintf(&b, "- **Message:** %s\n", res.Failure.Message)
		_, err := io.WriteString(w, b.String())
		return err
	}

	rep := res.Report
	title := rep.Query.Title
	if title == "" {
		title = rep.Query.URL
	}
	if title == "" {
		title = "Text query"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if rep.Query.URL != "" {
		fmt.Fprintf(&b, "- **URL:** %s\n", rep.Query.URL)
	}
	fmt.Fprintf(&b, "- **Reliability:** %d%% (%s)\n", rep.Score.Percent, rep.Score.Level.Label())
	fmt.Fprintf(&b, "- **Recommendation:** %s\n", rep.Score.Recommendation)
	fmt.Fprintf(&b, "- **Evaluated:** %s\n", rep.EvaluatedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- **Index:** %s, %d rows\n\n", rep.Index.Model, rep.Index.Rows)

	f := rep.Score.Factors
	b.WriteString("## Factors\n\n")
	b.WriteString("| Factor | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Content consistency | %.3f |\n", f.ContentConsistency)
	fmt.Fprintf(&b, "| Source diversity | %.3f |\n", f.SourceDiversity)
	fmt.Fprintf(&b, "| Temporal relevance | %.3f |\n", f.TemporalRelevance)
	fmt.Fprintf(&b, "| Evidence quality | %.3f |\n", f.EvidenceQuality)
	if f.PatternScore > 0 {
		fmt.Fprintf(&b, "| Fake-pattern score | %.2f |\n", f.PatternScore)
	}
	b.WriteString("\n")

	if len(rep.Score.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range rep.Score.Signals {
			fmt.Fprintf(&b, "- [%s] **%s**: %s\n", s.Severity, s.Type, s.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Evidence\n\n")
	if rep.NoEvidence {
		b.WriteString("No supporting evidence was found in the index.\n")
	} else {
		b.WriteString("| # | Source | Similarity | Support | Contradiction | Score |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, ev := range rep.Evidence {
			label := ev.Title
			if label == "" {
				label = ev.Domain
			}
			label = strings.ReplaceAll(util.Truncate(label, 60), "|", "/")
			fallback := ""
			if ev.Fallback {
				fallback = " (keyword)"
			}
			fmt.Fprintf(&b, "| %d | [%s](%s)%s | %.3f | %.3f | %.3f | %d%% |\n",
				ev.Rank, label, ev.URL, fallback, ev.Similarity, ev.Support, ev.Contradiction, ev.Percent)
		}
	}

	if r.includeFooter {
		b.WriteString("\n---\n")
		b.WriteString("_Scores are heuristic estimates from retrieved evidence, not a fact-check verdict._\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Summary prints a short terminal summary
func (r *Renderer) Summary(w io.Writer, res model.Result) {
	if !res.OK() {
		_, _ = fmt.Fprintf(w, "✗ %s: %s\n", res.Failure.Kind, res.Failure.Message)
		return
	}
	rep := res.Report
	_, _ = fmt.Fprintf(w, "Reliability: %d%% (%s)\n", rep.Score.Percent, rep.Score.Level.Label())
	_, _ = fmt.Fprintf(w, "%s\n", rep.Score.Recommendation)
	for _, ev := range rep.Evidence {
		_, _ = fmt.Fprintf(w, "  %2d. %3d%%  %s\n", ev.Rank, ev.Percent, ev.URL)
	}
	if rep.NoEvidence {
		_, _ = fmt.Fprintln(w, "  (no evidence found)")
	}
}

// RenderFiles writes the JSON and Markdown reports to the given paths.
// Empty paths are skipped.
func (r *Renderer) RenderFiles(res model.Result, jsonPath, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := r.writeFile(jsonPath, func(w io.Writer) error { return r.JSON(w, res) }); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("✓ Wrote JSON: %s\n", jsonPath)
		}
	}
	if mdPath != "" {
		if err := r.writeFile(mdPath, func(w io.Writer) error { return r.Markdown(w, res) }); err != nil {
			return err
		}
		if verbose {
			fmt.Printf("✓ Wrote Markdown: %s\n", mdPath)
		}
	}
	return nil
}

func (r *Renderer) writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "render: close %s", path)
}
