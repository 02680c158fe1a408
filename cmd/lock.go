package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/lock"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewLockCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "lock <id>",
		Short: "Take the edit lock of a document",
		Long: `Ask the server for the edit lock of a document. Only one user can hold
a document's lock; the lock stays held until "wiki unlock".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ctx := cmd.Context()

			n, err := s.Open(ctx, args[0])
			if err != nil {
				return err
			}
			if err := s.RequestLock(ctx); err != nil {
				if errors.Is(err, models.ErrLockConflict) {
					return fmt.Errorf("%s is locked by %s", n.Name, holderOf(s.LockStatus()))
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", n.Name, renderLock(s.LockStatus()))
			return nil
		},
	}
}

func NewUnlockCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Release the edit lock of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ctx := cmd.Context()

			n, err := s.Open(ctx, args[0])
			if err != nil {
				return err
			}
			st := s.LockStatus()
			switch st.State {
			case lock.Unlocked:
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not locked\n", n.Name)
				return nil
			case lock.LockedByOther:
				return fmt.Errorf("%s is locked by %s", n.Name, holderOf(st))
			}

			if err := s.ReleaseLock(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", n.Name, renderLock(s.LockStatus()))
			return nil
		},
	}
}

func holderOf(st lock.Status) string {
	if st.HolderName == "" {
		return "another user"
	}
	return st.HolderName
}
