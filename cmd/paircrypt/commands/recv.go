package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// recv: fetch and decrypt queued messages for --user.
func recvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recv",
		Short: "Fetch and decrypt your queued messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireUser(); err != nil {
				return err
			}
			msgs, err := deps.Messages.ReceiveMessages(cmd.Context())
			for _, m := range msgs {
				ts := time.Unix(m.Timestamp, 0).Format(time.DateTime)
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", ts, m.From, m.Plaintext)
			}
			return err
		},
	}
}
