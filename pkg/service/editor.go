package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mattsolo1/grove-wiki/pkg/frontmatter"
	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/lock"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/session"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

// Open makes id the active document. Leaving a document with unsaved changes
// asks the Confirmer first and returns session.ErrNavigationCanceled when the
// user keeps them. Opening the document that is already open does nothing.
// When the fetch fails the previous document stays open.
func (s *Service) Open(ctx context.Context, id string) (*models.Node, error) {
	from := s.tracker.ActiveDocumentID()
	if from != "" && from == id {
		n, _ := s.Lookup(id)
		return n, nil
	}
	if err := s.guard.Navigate(ctx, session.Location{DocumentID: from}, session.Location{DocumentID: id}); err != nil {
		return nil, err
	}

	rec, err := s.remote.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	if !rec.Kind.IsDocument() {
		return nil, &models.NodeError{Op: "open", ID: id, Err: models.ErrInvalidNode}
	}

	if from != "" && from != id {
		s.releaseQuietly(ctx)
	}
	s.locks.Reset(id, rec.Lock)
	s.tracker.Open(id, rec.Content)

	fetched := rec.ToNode()
	s.mu.Lock()
	t, err := tree.Update(s.tree, id, func(cur *models.Node) *models.Node {
		c := cur.Clone()
		c.Name = fetched.Name
		c.Kind = fetched.Kind
		c.Content = fetched.Content
		c.InIndex = fetched.InIndex
		if len(fetched.Tags) > 0 {
			c.Tags = fetched.Tags
		}
		if len(fetched.Versions) > 0 {
			c.Versions = fetched.Versions
			c.CurrentVersionLabel = fetched.CurrentVersionLabel
		}
		fetched = c
		return c
	})
	if err == nil {
		s.setTreeLocked(t)
	}
	s.mu.Unlock()

	if err := ledger.Validate(fetched); err != nil {
		s.logger.WithError(err).WithField("document", id).Warn("Invalid version ledger")
	}
	return fetched, nil
}

// CloseDocument leaves the active document, releasing a held lock. Unsaved
// changes are confirmed like any other navigation.
func (s *Service) CloseDocument(ctx context.Context) error {
	from := s.tracker.ActiveDocumentID()
	if from == "" {
		return nil
	}
	if err := s.guard.Navigate(ctx, session.Location{DocumentID: from}, session.Location{}); err != nil {
		return err
	}
	s.releaseQuietly(ctx)
	s.tracker.Close()
	s.locks.Reset("", models.LockStatus{})
	return nil
}

func (s *Service) releaseQuietly(ctx context.Context) {
	if err := s.locks.Release(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to release lock when leaving document")
	}
}

// ActiveDocumentID returns the id of the open document, or "".
func (s *Service) ActiveDocumentID() string {
	return s.tracker.ActiveDocumentID()
}

// Session returns the edit session of the open document.
func (s *Service) Session() (session.EditSession, bool) {
	return s.tracker.Current()
}

// IsDirty reports whether the open document has unsaved changes.
func (s *Service) IsDirty() bool {
	return s.tracker.IsDirty()
}

// BeforeUnload reports whether closing the workspace must be confirmed.
func (s *Service) BeforeUnload() bool {
	return s.guard.BeforeUnload()
}

// Edit replaces the buffer of the open document. It fails with
// models.ErrLockConflict unless this user holds the document's lock.
func (s *Service) Edit(content string) error {
	return s.tracker.SetContent(content)
}

// Save persists the buffer of the open document. A clean buffer is not sent.
// Edits made while the save is in flight stay dirty.
func (s *Service) Save(ctx context.Context) error {
	cur, ok := s.tracker.Current()
	if !ok {
		return session.ErrNoSession
	}
	if !cur.IsDirty() {
		return nil
	}
	if !s.locks.CanEdit(cur.DocumentID) {
		return &models.NodeError{Op: "save", ID: cur.DocumentID, Err: models.ErrLockConflict}
	}

	content := cur.LiveContent
	rec, err := s.remote.UpdateDocument(ctx, cur.DocumentID, &content, nil)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	s.tracker.MarkSaved(cur.DocumentID, content)

	s.mu.Lock()
	t, err := tree.Update(s.tree, cur.DocumentID, func(n *models.Node) *models.Node {
		c := n.Clone()
		c.Content = content
		if c.Kind == models.KindMarkdown {
			if fm, _, err := frontmatter.Parse(content); err == nil && fm != nil {
				c.Tags = frontmatter.MergeTags(fm.Tags)
			}
		}
		if len(rec.Versions) > 0 {
			c.Versions = rec.Versions
			c.CurrentVersionLabel = rec.CurrentVersionLabel
		}
		return c
	})
	if err == nil {
		s.setTreeLocked(t)
	}
	s.mu.Unlock()

	s.reindex(cur.DocumentID)
	return nil
}

// SetTags replaces the tag list in the front matter header of the open
// markdown document and saves it. Like Edit it needs this user's lock.
func (s *Service) SetTags(ctx context.Context, tags []string) error {
	cur, ok := s.tracker.Current()
	if !ok {
		return session.ErrNoSession
	}
	if n, ok := s.Lookup(cur.DocumentID); !ok || n.Kind != models.KindMarkdown {
		return &models.NodeError{Op: "set tags", ID: cur.DocumentID, Err: models.ErrInvalidNode}
	}

	content, err := frontmatter.SetTags(cur.LiveContent, tags, time.Now())
	if err != nil {
		return fmt.Errorf("set tags: %w", err)
	}
	if err := s.Edit(content); err != nil {
		return err
	}
	return s.Save(ctx)
}

// RequestLock asks the server for the open document's edit lock.
func (s *Service) RequestLock(ctx context.Context) error {
	return s.locks.Request(ctx)
}

// ReleaseLock saves unsaved changes and then gives the lock back. If the save
// fails the lock is kept.
func (s *Service) ReleaseLock(ctx context.Context) error {
	if s.tracker.IsDirty() && s.locks.CanEdit(s.tracker.ActiveDocumentID()) {
		if err := s.Save(ctx); err != nil {
			return fmt.Errorf("save before release: %w", err)
		}
	}
	return s.locks.Release(ctx)
}

// LockStatus returns the lock state of the open document.
func (s *Service) LockStatus() lock.Status {
	return s.locks.Status()
}
