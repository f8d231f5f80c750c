package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pageoak/bookrag/internal/generate"
	"github.com/pageoak/bookrag/internal/pipeline"
)

var (
	askBookVersion  string
	askChapter      string
	askTopK         int
	askSelectedText string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question about the ingested book",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askBookVersion, "book-version", "", "book version (defaults to config)")
	askCmd.Flags().StringVar(&askChapter, "chapter", "", "restrict retrieval to one chapter")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of chunks to retrieve (defaults to config)")
	askCmd.Flags().StringVar(&askSelectedText, "selected-text", "", "answer only from this passage")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()

	req := pipeline.QueryRequest{
		Question:    strings.Join(args, " "),
		BookVersion: askBookVersion,
		Chapter:     askChapter,
		TopK:        askTopK,
	}
	if askSelectedText != "" {
		req.Mode = generate.ModeSelectedText
		req.SelectedText = askSelectedText
	}

	result, err := app.orchestrator.Query(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(result.Answer)
	if len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for i, s := range result.Sources {
			location := strings.TrimSpace(strings.Join([]string{s.Chapter, s.Section, s.Subsection}, " "))
			fmt.Printf("  %d. %s (%.0f%%)\n", i+1, location, s.Similarity*100)
		}
	}
	fmt.Printf("\n(%.1fs retrieval %dms, generation %dms)\n",
		float64(result.Metrics.TotalMS)/1000,
		result.Metrics.RetrievalMS,
		result.Metrics.GenerationMS,
	)
	return nil
}
