package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewNewCmd(svc **service.Service) *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "new <folder|doc|text> <name>",
		Short: "Create a folder or document",
		Long: `Create a folder, a markdown document or a plain text document.

Examples:
  wiki new folder "Runbooks"
  wiki new doc "Onboarding.md" --parent doc-3
  wiki new text "notes.txt"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			ctx := cmd.Context()

			var (
				n   *models.Node
				err error
			)
			switch args[0] {
			case "folder", "dir":
				n, err = s.CreateFolder(ctx, parentID, args[1])
			case "doc", "markdown", "md":
				n, err = s.CreateDocument(ctx, parentID, args[1], models.KindMarkdown)
			case "text", "txt":
				n, err = s.CreateDocument(ctx, parentID, args[1], models.KindText)
			default:
				return fmt.Errorf("unknown kind %q: want folder, doc or text", args[0])
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s)\n", n.Kind, n.Name, n.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "Parent folder id (default: workspace root)")

	return cmd
}
