package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewUploadCmd(svc **service.Service) *cobra.Command {
	var (
		parentID string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a local text or markdown file",
		Long: `Upload a local file as a new document. Files ending in .md, .markdown
or .mdx become markdown documents; anything else becomes plain text.

Examples:
  wiki upload ./README.md
  wiki upload notes.txt --parent doc-2 --name "Meeting notes.txt"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}
			if !utf8.Valid(data) {
				return fmt.Errorf("%s is not a UTF-8 text file", args[0])
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			n, err := s.Upload(cmd.Context(), parentID, name, string(data))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s as %s (%s)\n", args[0], n.Name, n.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "Parent folder id (default: workspace root)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Document name (default: file name)")

	return cmd
}
