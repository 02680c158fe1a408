package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewCatCmd(svc **service.Service) *cobra.Command {
	var showStatus bool

	cmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			n, err := s.Open(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showStatus {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", n.Name, renderLock(s.LockStatus()))
			}
			fmt.Fprint(out, n.Content)
			if n.Content != "" && !strings.HasSuffix(n.Content, "\n") {
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showStatus, "status", "s", false, "Print the lock status to stderr")

	return cmd
}
