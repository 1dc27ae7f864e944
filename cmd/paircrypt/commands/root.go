package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"paircrypt/internal/app"
	"paircrypt/internal/domain"
)

var (
	cfg  = app.DefaultConfig()
	deps *app.Wire
)

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := &cobra.Command{
		Use:           "paircrypt",
		Short:         "End-to-end encrypted messaging over a directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger(cfg.LogLevel, os.Stderr)
			if err != nil {
				return err
			}
			deps, err = app.NewWire(cfg, log)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfg.Home, "home", cfg.Home, "state directory")
	pf.StringVarP(&cfg.Passphrase, "passphrase", "p", "", "passphrase protecting the identity")
	pf.StringVar(&cfg.DirectoryURL, "directory", cfg.DirectoryURL, "directory base URL")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.StringVarP(&cfg.User, "user", "u", "", "your address name")
	pf.Uint32Var(&cfg.Device, "device", cfg.Device, "your device id")

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		publishCmd(),
		sendCmd(),
		recvCmd(),
		statusCmd(),
		resetCmd(),
	)
	return root.ExecuteContext(ctx)
}

func requirePassphrase() error {
	if cfg.Passphrase == "" {
		return errors.New("passphrase required (-p)")
	}
	return nil
}

// requireUser checks the flags messaging commands need.
func requireUser() error {
	if err := requirePassphrase(); err != nil {
		return err
	}
	if deps.Messages == nil {
		return errors.New("user required (-u)")
	}
	return nil
}

func parsePeer(s string) (domain.Address, error) {
	return domain.ParseAddress(s)
}
