package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/veriscope/internal/pipeline"
)

var (
	statsTop    int
	statsFormat string
)

// indexCmd groups index maintenance commands
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect the embedding index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Long:  `Show the embedding model, dimension, row and URL counts, seed and added rows, and the largest domains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := pipeline.NewPipeline(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("init pipeline: %w", err)
		}
		defer p.Close()

		stats := p.Index.Snapshot().Stats(statsTop)
		out := cmd.OutOrStdout()
		switch statsFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		case "yaml", "":
			data, err := yaml.Marshal(stats)
			if err != nil {
				return fmt.Errorf("marshal stats: %w", err)
			}
			_, err = out.Write(data)
			return err
		default:
			return fmt.Errorf("unknown format %q (supported: yaml, json)", statsFormat)
		}
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatsCmd)

	indexStatsCmd.Flags().IntVar(&statsTop, "top", 10, "number of domains to list")
	indexStatsCmd.Flags().StringVarP(&statsFormat, "format", "o", "yaml", "output format (yaml, json)")
}
