package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <peer>",
		Short: "Show the session phase with a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			h, ok, err := deps.Sessions.Handle(peer)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no live session\n", peer)
				return nil
			}
			phase, err := deps.Sessions.Phase(h)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (session %s)\n", peer, phase, h.SessionID)
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <peer>",
		Short: "Wipe the session with a peer",
		Long:  "Wipes the session keys. The next message to or from the peer starts a new handshake.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peer, err := parsePeer(args[0])
			if err != nil {
				return err
			}
			h, ok, err := deps.Sessions.Handle(peer)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no live session with %s", peer)
			}
			if err := deps.Sessions.ResetSession(h); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session with %s reset\n", peer)
			return nil
		},
	}
}
