package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewHistoryCmd(svc **service.Service) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the version history of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			versions, err := s.Versions(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(versions)
			}
			if len(versions) == 0 {
				fmt.Fprintln(out, "No versions recorded")
				return nil
			}

			current, _ := s.CurrentVersion(args[0])
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\tLABEL\tSTATE\tAUTHOR\tUPDATED")
			for _, v := range versions {
				marker := ""
				if v.ID == current.ID {
					marker = "*"
				}
				updated := ""
				if !v.UpdatedAt.IsZero() {
					updated = v.UpdatedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, v.Label, renderBadge(ledger.BadgeFor(v.State)), v.Author, updated)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}
