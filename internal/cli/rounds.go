package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/wordgroups/internal/services/puzzle"
)

func newRoundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Puzzle content commands",
	}

	cmd.AddCommand(newRoundsCheckCmd())

	return cmd
}

func newRoundsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>",
		Short: "Validate a rounds file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, err := puzzle.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(RoundsReport{
				File:   args[0],
				Rounds: len(rounds),
				Valid:  true,
			})
			return nil
		},
	}
}
