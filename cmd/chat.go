package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/service"
	"github.com/mattsolo1/grove-wiki/pkg/stream"
)

func NewChatCmd(svc **service.Service) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Ask the assistant",
		Long: `Send a message to the assistant and print the reply as it streams in.
Press Ctrl-C to stop the reply early.

Examples:
  wiki chat "summarise the onboarding runbook"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			out := cmd.OutOrStdout()

			task, err := s.ChatStream(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			for delta := range task.All() {
				fmt.Fprint(out, delta)
			}
			reply, err := task.Wait()
			if reply != "" && !strings.HasSuffix(reply, "\n") {
				fmt.Fprintln(out)
			}
			if errors.Is(err, stream.ErrCanceled) {
				fmt.Fprintln(cmd.ErrOrStderr(), mutedStyle.Render("(reply stopped)"))
				return nil
			}
			return err
		},
	}
}
