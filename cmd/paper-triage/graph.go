// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/similarity"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Print the similarity graph of archived papers as JSON",
	Long: `Graph selects up to --limit archived papers and prints every pair whose
embedding similarity reaches --threshold. Missing embeddings are obtained
from the embedding provider and stored.`,
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	threshold, _ := cmd.Flags().GetFloat64("threshold")
	summarized, _ := cmd.Flags().GetBool("summarized-only")
	order, _ := cmd.Flags().GetString("order")
	if order != string(archive.OrderRecent) && order != string(archive.OrderScore) {
		return fmt.Errorf("invalid order %q (supported: recent, score)", order)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := newSimilarity(cfg, store, os.Stderr).Graph(context.Background(), similarity.GraphQuery{
		Limit:          limit,
		Threshold:      threshold,
		SummarizedOnly: summarized,
		Order:          archive.Order(order),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%d nodes, %d edges\n", len(g.Nodes), len(g.Edges))
	return printJSON(g)
}

var relatedCmd = &cobra.Command{
	Use:   "related <paper-id>",
	Short: "List the archived papers most similar to one paper",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelated,
}

func runRelated(cmd *cobra.Command, args []string) error {
	k, _ := cmd.Flags().GetInt("k")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	related, err := newSimilarity(cfg, store, os.Stderr).Related(context.Background(), args[0], k, nil)
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(related)
	}
	if len(related) == 0 {
		fmt.Println("No related papers found.")
		return nil
	}
	fmt.Fprintf(os.Stdout, "%-6s  %-50s  %-20s  %s\n", "Sim", "Title", "Venue", "Paper")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 110))
	for _, r := range related {
		fmt.Fprintf(os.Stdout, "%-6.3f  %-50s  %-20s  %s\n", r.Similarity, clip(r.Title, 50), clip(r.Venue, 20), r.PaperID)
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	graphCmd.Flags().Int("limit", similarity.DefaultLimit, "maximum number of nodes")
	graphCmd.Flags().Float64("threshold", 0.25, "minimum similarity for an edge")
	graphCmd.Flags().Bool("summarized-only", true, "only papers with a deep-read report")
	graphCmd.Flags().String("order", string(archive.OrderRecent), "node selection order: recent or score")

	relatedCmd.Flags().Int("k", 5, "number of related papers")
	relatedCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(graphCmd, relatedCmd)
}
