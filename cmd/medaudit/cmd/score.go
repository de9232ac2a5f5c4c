package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/medaudit/internal/core/compliance"
	"github.com/solatis/medaudit/internal/core/db"
	"github.com/solatis/medaudit/internal/types"
)

var scoreCmd = &cobra.Command{
	Use:   "score <document.json>",
	Short: "Score a document against the current rule set",
	Args:  cobra.ExactArgs(1),
	RunE:  runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().String("provider", "", "insurance provider key (overrides the document's provider field)")
	scoreCmd.Flags().Int("previous-score", 0, "previous score; reports the delta against it")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("document must be a JSON object: %w", err)
	}
	if prev, _ := cmd.Flags().GetInt("previous-score"); prev < 0 || prev > types.BaseScore {
		return fmt.Errorf("--previous-score must be between 0 and %d", types.BaseScore)
	}

	cfg, log, conn, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer log.Sync()

	queries, err := db.LoadQueries(conn)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	svc, _, err := compliance.New(ctx, queries, compliance.Options{Cache: cfg.Rules.CacheConfig()}, log)
	if err != nil {
		return err
	}

	provider, _ := cmd.Flags().GetString("provider")
	doc := types.NewDocument(tree, provider)

	var result *types.ScoringResult
	if cmd.Flags().Changed("previous-score") {
		prev, _ := cmd.Flags().GetInt("previous-score")
		result, err = svc.Scorer.Recalculate(ctx, doc, prev)
	} else {
		result, err = svc.Scorer.Score(ctx, doc)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
