package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
)

// TerminalConfirmer asks on the terminal before unsaved changes are thrown
// away.
type TerminalConfirmer struct{}

func (TerminalConfirmer) ConfirmDiscard(ctx context.Context, documentID string) (bool, error) {
	return confirm(ctx, fmt.Sprintf("Discard unsaved changes to %s?", documentID))
}

// confirm asks a yes/no question. Aborting the prompt counts as no.
func confirm(ctx context.Context, title string) (bool, error) {
	var ok bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}
