package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/service"
)

func NewEditCmd(svc **service.Service) *cobra.Command {
	var editor string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit a document in $EDITOR",
		Long: `Take the document's edit lock, open it in your editor, save the result
and release the lock again.

Examples:
  wiki edit doc-4
  wiki edit doc-4 --editor "code --wait"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s := *svc
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

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

			if editor == "" {
				editor = os.Getenv("EDITOR")
			}
			if editor == "" {
				editor = "vi"
			}

			edited, err := runEditor(cmd, editor, n)
			if err != nil {
				return err
			}
			if edited == n.Content {
				fmt.Fprintln(out, "No changes")
				return nil
			}
			if err := s.Edit(edited); err != nil {
				return err
			}
			if err := s.Save(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s\n", n.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&editor, "editor", "e", "", "Editor command (default: $EDITOR, then vi)")

	return cmd
}

// runEditor writes the document to a temp file, runs the editor on it and
// returns the file's new content.
func runEditor(cmd *cobra.Command, editor string, n *models.Node) (string, error) {
	ext := filepath.Ext(n.Name)
	if ext == "" && n.Kind == models.KindMarkdown {
		ext = ".md"
	}
	f, err := os.CreateTemp("", "wiki-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(n.Content); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	parts := strings.Fields(editor)
	c := exec.CommandContext(cmd.Context(), parts[0], append(parts[1:], path)...)
	c.Stdin = os.Stdin
	c.Stdout = cmd.OutOrStdout()
	c.Stderr = cmd.ErrOrStderr()
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("run editor: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read temp file: %w", err)
	}
	return string(data), nil
}
