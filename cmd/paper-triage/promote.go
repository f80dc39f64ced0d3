// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var promoteCmd = &cobra.Command{
	Use:   "promote <date> <paper-id>",
	Short: "Promote an also-notable paper of a run to a deep read",
	Long: `Promote generates the deep-read report for a paper listed as also
notable in the run of the given date, attaches related papers and moves it
to the run's deep reads. Promoting a paper that is already a deep read
changes nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runPromote,
}

func runPromote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.orch.Promote(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return printJSON(res)
	}
	if res.Promoted {
		fmt.Printf("Promoted %q to a deep read for %s\n", res.Card.Title, args[0])
	} else {
		fmt.Printf("%q is already a deep read for %s\n", res.Card.Title, args[0])
	}
	return nil
}

func init() {
	promoteCmd.Flags().Bool("json", false, "output the promoted card as JSON")

	rootCmd.AddCommand(promoteCmd)
}
