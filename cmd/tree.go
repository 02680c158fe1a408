package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/service"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

func NewTreeCmd(svc **service.Service) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "tree",
		Aliases: []string{"ls"},
		Short:   "Show the workspace tree",
		Long: `Show every folder and document in the workspace.

Examples:
  wiki tree          # Indented tree with ids and version badges
  wiki tree --json   # Machine-readable tree`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			out := cmd.OutOrStdout()
			t := s.Tree()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(t)
			}

			if len(t) == 0 {
				fmt.Fprintln(out, "Workspace is empty")
				return nil
			}
			tree.Walk(t, func(n *models.Node, depth int) bool {
				fmt.Fprintln(out, treeLine(n, depth))
				return true
			})
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func treeLine(n *models.Node, depth int) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	if n.IsFolder() {
		b.WriteString(folderStyle.Render(n.Name + "/"))
	} else {
		b.WriteString(n.Name)
	}
	b.WriteString(" ")
	b.WriteString(idStyle.Render(n.ID))

	if cur, ok := ledger.CurrentOf(n); ok {
		b.WriteString(" ")
		b.WriteString(cur.Label)
		b.WriteString(" ")
		b.WriteString(renderBadge(ledger.BadgeFor(cur.State)))
	}
	if n.InIndex {
		b.WriteString(mutedStyle.Render(" (indexed)"))
	}
	if service.IsPending(n.ID) {
		b.WriteString(mutedStyle.Render(" (uploading)"))
	}
	return b.String()
}
