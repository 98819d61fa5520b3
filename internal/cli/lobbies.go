package cli

import (
	"github.com/spf13/cobra"

	"github.com/mcoot/tagmatch/internal/api/response"
)

func newLobbiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobbies",
		Short: "Find listed matches",
	}

	cmd.AddCommand(newLobbiesListCmd())
	cmd.AddCommand(newLobbiesJoinCmd())

	return cmd
}

func newLobbiesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List matches open to join",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := client.ListEntries(cmd.Context())
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(response.EntryList{Entries: entries})
			return nil
		},
	}
}

func newLobbiesJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <entry-id>",
		Short: "Become a member of a listed match and reveal its join code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := client.JoinEntry(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := NewOutput(cfg.Output)
			out.Print(*entry)
			return nil
		},
	}
}
