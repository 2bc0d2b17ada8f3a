package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	graphTopLimit int
	graphTopJSON  bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect the link graph",
}

var graphTopCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most important notes",
	Long: `Lists notes by PageRank importance. Scores are normalised so the most
important note scores 1.`,
	Args: cobra.NoArgs,
	RunE: runGraphTop,
}

func init() {
	graphTopCmd.Flags().IntVarP(&graphTopLimit, "limit", "n", 10, "number of notes to list")
	graphTopCmd.Flags().BoolVar(&graphTopJSON, "json", false, "output scores as JSON")
	graphCmd.AddCommand(graphTopCmd)
	rootCmd.AddCommand(graphCmd)
}

func runGraphTop(cmd *cobra.Command, _ []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}
	if graphTopLimit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", graphTopLimit)
	}

	top := graphService.Top(graphTopLimit)

	if graphTopJSON {
		data, err := json.MarshalIndent(top, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal scores: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(top) == 0 {
		cmd.Println("The graph is empty. Run 'sercha-rank index' first.")
		return nil
	}

	for i := range top {
		s := &top[i]
		cmd.Printf("  %2d. %.3f  %s  (in %d, out %d)\n", i+1, s.Score, s.DocumentID, s.InLinks, s.OutLinks)
	}
	return nil
}
