package session

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNoSession is returned by edits when no document is open.
	ErrNoSession = errors.New("no document open")
	// ErrNavigationCanceled is returned when the user keeps unsaved changes.
	ErrNavigationCanceled = errors.New("navigation canceled: unsaved changes kept")
)

// Location identifies where the workspace is pointed. Two locations with the
// same DocumentID are the same document shown differently.
type Location struct {
	DocumentID string
	View       string
}

// Confirmer asks the user whether unsaved changes may be thrown away.
type Confirmer interface {
	ConfirmDiscard(ctx context.Context, documentID string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, documentID string) (bool, error)

func (f ConfirmFunc) ConfirmDiscard(ctx context.Context, documentID string) (bool, error) {
	return f(ctx, documentID)
}

// Guard blocks navigation and unload while the tracker is dirty.
type Guard struct {
	tracker *Tracker
	confirm Confirmer
	logger  *logrus.Entry
}

// NewGuard creates a guard. A nil confirmer declines every discard.
func NewGuard(tracker *Tracker, confirm Confirmer, logger *logrus.Entry) *Guard {
	if confirm == nil {
		confirm = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Guard{tracker: tracker, confirm: confirm, logger: logger.WithField("component", "guard")}
}

// Navigate decides whether the transition from → to may proceed. It returns
// nil to proceed and ErrNavigationCanceled when the user keeps their edits.
// Re-rendering the same document never prompts.
func (g *Guard) Navigate(ctx context.Context, from, to Location) error {
	if from.DocumentID == to.DocumentID {
		return nil
	}
	if !g.tracker.IsDirty() {
		return nil
	}

	ok, err := g.confirm.ConfirmDiscard(ctx, from.DocumentID)
	if err != nil {
		return fmt.Errorf("confirm discard: %w", err)
	}
	if !ok {
		g.logger.WithField("document", from.DocumentID).Debug("Navigation canceled by user")
		return ErrNavigationCanceled
	}
	g.logger.WithField("document", from.DocumentID).Info("Unsaved changes discarded")
	return nil
}

// BeforeUnload reports whether closing the workspace must be confirmed.
func (g *Guard) BeforeUnload() bool {
	return g.tracker.IsDirty()
}
