package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewTagCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "tag <id> [tag...]",
		Short: "Set the tags of a markdown document",
		Long: `Replace the tags in a markdown document's front matter. The edit lock is
taken for the write and released afterwards. Without tags the list is cleared.

Examples:
  wiki tag doc-4 ops runbook
  wiki tag doc-4`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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
			defer func() {
				if rerr := s.ReleaseLock(ctx); rerr != nil && err == nil {
					err = rerr
				}
			}()

			if err := s.SetTags(ctx, args[1:]); err != nil {
				if errors.Is(err, models.ErrInvalidNode) {
					return fmt.Errorf("%s has no front matter; only markdown documents carry tags", n.Name)
				}
				return err
			}
			tags := args[1:]
			if tagged, ok := s.Lookup(n.ID); ok {
				tags = tagged.Tags
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tagged %s: %s\n", n.Name, strings.Join(tags, ", "))
			return nil
		},
	}
}
