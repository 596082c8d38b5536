package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mcoot/wordgroups/internal/api/response"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running server's status API",
	}

	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newLeaderboardCmd())
	cmd.AddCommand(newGameCmd())

	return cmd
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result response.HealthResponse

			if err := NewClient(cfg.ServerURL).Get("/api/health", &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}

func newLeaderboardCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/leaderboard"
			if top > 0 {
				path += "?top=" + strconv.Itoa(top)
			}

			var result response.LeaderboardResponse
			if err := NewClient(cfg.ServerURL).Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 0, "Only show the first N rows")

	return cmd
}

func newGameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "game [id]",
		Short: "Show the current game, or an archived one by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/games/current"
			if len(args) == 1 {
				if _, err := strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("game id must be an integer: %q", args[0])
				}
				path = "/api/games/" + args[0]
			}

			var result response.GameResponse
			if err := NewClient(cfg.ServerURL).Get(path, &result); err != nil {
				return err
			}

			NewOutput(cfg.Output, cmd.OutOrStdout()).Print(result)
			return nil
		},
	}
}
