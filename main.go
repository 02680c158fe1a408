package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/cmd"
	"github.com/mattsolo1/grove-wiki/cmd/config"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

var svc *service.Service

func main() {
	rootCmd := &cobra.Command{
		Use:           "wiki",
		Short:         "A shared folder-and-document workspace with an assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.AddGlobalFlags(rootCmd)
	cobra.OnInitialize(config.InitConfig)

	rootCmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		// This runs once before any subcommand
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := config.NewLogger(cfg.LogLevel)
		if err != nil {
			return err
		}

		svc, err = config.InitService(cfg, logger, cmd.TerminalConfirmer{})
		if err != nil {
			return fmt.Errorf("failed to initialize service: %w", err)
		}
		if _, err := svc.Refresh(c.Context()); err != nil {
			return err
		}
		return nil
	}
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if svc == nil {
			return nil
		}
		return svc.Close()
	}

	// Add subcommands
	rootCmd.AddCommand(cmd.NewTreeCmd(&svc))
	rootCmd.AddCommand(cmd.NewCatCmd(&svc))
	rootCmd.AddCommand(cmd.NewNewCmd(&svc))
	rootCmd.AddCommand(cmd.NewRenameCmd(&svc))
	rootCmd.AddCommand(cmd.NewRmCmd(&svc))
	rootCmd.AddCommand(cmd.NewTrashCmd(&svc))
	rootCmd.AddCommand(cmd.NewRestoreCmd(&svc))
	rootCmd.AddCommand(cmd.NewPurgeCmd(&svc))
	rootCmd.AddCommand(cmd.NewUploadCmd(&svc))
	rootCmd.AddCommand(cmd.NewHistoryCmd(&svc))
	rootCmd.AddCommand(cmd.NewLockCmd(&svc))
	rootCmd.AddCommand(cmd.NewUnlockCmd(&svc))
	rootCmd.AddCommand(cmd.NewEditCmd(&svc))
	rootCmd.AddCommand(cmd.NewTagCmd(&svc))
	rootCmd.AddCommand(cmd.NewChatCmd(&svc))
	rootCmd.AddCommand(cmd.NewSearchCmd(&svc))
	rootCmd.AddCommand(cmd.NewVersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
