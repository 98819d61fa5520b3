package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcoot/tagmatch/internal/api/response"
	"github.com/mcoot/tagmatch/internal/model"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Hosted match commands",
	}

	cmd.AddCommand(newMatchStatusCmd())
	cmd.AddCommand(newMatchStartCmd())
	cmd.AddCommand(newMatchLeaderboardCmd())
	cmd.AddCommand(newMatchContactCmd())

	return cmd
}

func newMatchStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the hosted match",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.MatchState(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*result)
			return nil
		},
	}
}

func newMatchStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the match clock (host only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := client.StartMatch(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*result)
			return nil
		},
	}
}

func newMatchLeaderboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "Show match standings",
		RunE: func(cmd *cobra.Command, args []string) error {
			standings, err := client.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(response.Leaderboard{Standings: standings})
			return nil
		},
	}
}

func newMatchContactCmd() *cobra.Command {
	var initiator, target uint64

	cmd := &cobra.Command{
		Use:   "contact",
		Short: "Report a contact between two participants (host only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if initiator == 0 || target == 0 {
				return fmt.Errorf("--initiator and --target are required")
			}

			transferred, err := client.InjectContact(cmd.Context(), model.ConnectionID(initiator), model.ConnectionID(target))
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(response.ContactResult{Transferred: transferred})
			return nil
		},
	}

	cmd.Flags().Uint64Var(&initiator, "initiator", 0, "Connection id of the participant making contact (required)")
	cmd.Flags().Uint64Var(&target, "target", 0, "Connection id of the participant touched (required)")
	_ = cmd.MarkFlagRequired("initiator")
	_ = cmd.MarkFlagRequired("target")

	return cmd
}
