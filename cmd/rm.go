package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewRmCmd(svc **service.Service) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Move folders or documents to the trash",
		Long: `Move folders or documents, with everything below them, to the trash.
Several ids are deleted concurrently.

Examples:
  wiki rm doc-4
  wiki rm doc-4 doc-7 --yes`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ctx := cmd.Context()

			if !yes {
				ok, err := confirm(ctx, fmt.Sprintf("Move %d item(s) to the trash?", len(args)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			var err error
			if len(args) == 1 {
				err = s.Delete(ctx, args[0])
			} else {
				err = s.DeleteMany(ctx, args)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %d item(s) to the trash\n", len(args))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")

	return cmd
}
