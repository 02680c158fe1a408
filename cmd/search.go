package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/search"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewSearchCmd(svc **service.Service) *cobra.Command {
	var (
		searchKind  string
		searchLimit int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge index",
		Long: `Search documents that are part of the knowledge index.

Examples:
  wiki search "vpn setup"
  wiki search deploy --kind text --limit 5`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := *svc
			out := cmd.OutOrStdout()
			query := strings.Join(args, " ")

			opts := &search.Options{Limit: searchLimit}
			switch searchKind {
			case "":
			case "doc", "markdown", "md":
				opts.Kind = models.KindMarkdown
			case "text", "txt":
				opts.Kind = models.KindText
			default:
				return fmt.Errorf("unknown kind %q: want doc or text", searchKind)
			}

			hits, err := s.Search(query, opts)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(out, "No results found")
				return nil
			}

			fmt.Fprintf(out, "Found %d results:\n\n", len(hits))
			for i, h := range hits {
				fmt.Fprintf(out, "%d. %s %s\n", i+1, h.Name, idStyle.Render(h.ID))
				if h.Path != "" {
					fmt.Fprintf(out, "   %s\n", h.Path)
				}
				if h.Snippet != "" {
					fmt.Fprintf(out, "   %s\n", mutedStyle.Render(h.Snippet))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&searchKind, "kind", "k", "", "Filter by document kind (doc or text)")
	cmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum results")

	return cmd
}
