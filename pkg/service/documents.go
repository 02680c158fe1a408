package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/remote"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

// pendingPrefix marks client-side ids of uploads the server has not
// confirmed yet.
const pendingPrefix = "pending-"

// IsPending reports whether id belongs to an upload still in flight.
func IsPending(id string) bool {
	return strings.HasPrefix(id, pendingPrefix)
}

// KindForFile picks the document kind from a file name.
func KindForFile(name string) models.Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown", ".mdx":
		return models.KindMarkdown
	default:
		return models.KindText
	}
}

// CreateFolder creates a folder under parentID, or at the root when parentID
// is empty.
func (s *Service) CreateFolder(ctx context.Context, parentID, name string) (*models.Node, error) {
	return s.create(ctx, parentID, name, models.KindFolder)
}

// CreateDocument creates an empty document of the given document kind.
func (s *Service) CreateDocument(ctx context.Context, parentID, name string, kind models.Kind) (*models.Node, error) {
	if !kind.IsDocument() {
		return nil, &models.NodeError{Op: "create document", ID: name, Err: models.ErrInvalidNode}
	}
	return s.create(ctx, parentID, name, kind)
}

func (s *Service) create(ctx context.Context, parentID, name string, kind models.Kind) (*models.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &models.NodeError{Op: "create", ID: name, Err: models.ErrInvalidNode}
	}
	if err := s.checkParent("create", parentID); err != nil {
		return nil, err
	}

	rec, err := s.remote.CreateDocument(ctx, parentID, name, kind)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}

	n := s.newNode(rec)
	if err := s.insert(parentID, n); err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"id": n.ID, "kind": kind}).Debug("Created node")
	return n, nil
}

// newNode converts a freshly created record, giving documents their initial
// version ledger when the server sent none.
func (s *Service) newNode(rec *models.DocumentRecord) *models.Node {
	n := rec.ToNode()
	if n.Kind.IsDocument() && len(n.Versions) == 0 {
		n = ledger.Initial(n, s.cfg.Actor.DisplayName, time.Now())
	}
	return n
}

func (s *Service) checkParent(op, parentID string) error {
	if parentID == "" {
		return nil
	}
	p, ok := s.Lookup(parentID)
	if !ok || !p.IsFolder() {
		return &models.NodeError{Op: op, ID: parentID, Err: models.ErrParentNotFound}
	}
	return nil
}

func (s *Service) insert(parentID string, n *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := tree.Insert(s.tree, parentID, n)
	if err != nil {
		return err
	}
	s.setTreeLocked(t)
	return nil
}

// Rename changes the display name of a node. Only the name is sent, so a
// rename never touches content another user may have saved. Renaming to the
// current name does nothing.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &models.NodeError{Op: "rename", ID: id, Err: models.ErrInvalidNode}
	}
	n, ok := s.Lookup(id)
	if !ok {
		return &models.NodeError{Op: "rename", ID: id, Err: models.ErrNodeNotFound}
	}
	if n.Name == name {
		return nil
	}

	if _, err := s.remote.UpdateDocument(ctx, id, nil, &name); err != nil {
		return fmt.Errorf("rename: %w", err)
	}

	s.mu.Lock()
	t, err := tree.Rename(s.tree, id, name)
	if err == nil {
		s.setTreeLocked(t)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.reindex(id)
	return nil
}

// Delete moves a node and its subtree to the trash. When the open document
// is part of the removed subtree its session and lock are dropped.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, ok := s.Lookup(id); !ok {
		return &models.NodeError{Op: "delete", ID: id, Err: models.ErrNodeNotFound}
	}
	if err := s.remote.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	s.removeLocal(map[string]struct{}{id: {}})
	return nil
}

// DeleteMany trashes several nodes concurrently. Each delete runs to
// completion on its own; nodes whose remote delete succeeded are removed from
// the tree in one pass even when others failed, and the first failure is
// returned.
func (s *Service) DeleteMany(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, ok := s.Lookup(id); !ok {
			return &models.NodeError{Op: "delete", ID: id, Err: models.ErrNodeNotFound}
		}
	}

	var mu sync.Mutex
	deleted := make(map[string]struct{}, len(ids))

	var g errgroup.Group
	g.SetLimit(s.cfg.DeleteConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.remote.DeleteDocument(ctx, id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			mu.Lock()
			deleted[id] = struct{}{}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	s.removeLocal(deleted)
	return err
}

// removeLocal drops ids from the tree after the server confirmed the delete.
// Nodes that disappeared in the meantime are skipped, and the editor state
// is only cleared for a document that was still present.
func (s *Service) removeLocal(ids map[string]struct{}) {
	if len(ids) == 0 {
		return
	}

	s.mu.Lock()
	gone := make(map[string]struct{})
	for id := range ids {
		n, ok := s.ix.Get(id)
		if !ok {
			continue
		}
		for _, sub := range tree.SubtreeIDs(n) {
			gone[sub] = struct{}{}
		}
	}
	if len(gone) > 0 {
		s.setTreeLocked(tree.RemoveMany(s.tree, gone))
	}
	s.mu.Unlock()

	if active := s.tracker.ActiveDocumentID(); active != "" {
		if _, ok := gone[active]; ok {
			s.tracker.Close()
			s.locks.Reset("", models.LockStatus{})
			s.logger.WithField("document", active).Info("Open document was deleted")
		}
	}

	removed := make([]string, 0, len(gone))
	for id := range gone {
		removed = append(removed, id)
	}
	s.unindex(removed)
}

// Upload adds a document with content. The node appears in the tree at once
// under a pending id and is swapped for the server's node when the upload
// completes; a failed upload removes it again.
func (s *Service) Upload(ctx context.Context, parentID, name, content string) (*models.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &models.NodeError{Op: "upload", ID: name, Err: models.ErrInvalidNode}
	}
	if err := s.checkParent("upload", parentID); err != nil {
		return nil, err
	}

	kind := KindForFile(name)
	pending := models.NewDocument(pendingPrefix+uuid.NewString(), name, kind, content)
	if err := s.insert(parentID, pending); err != nil {
		return nil, err
	}

	rec, err := s.remote.UploadDocument(ctx, remote.Upload{
		ParentID: parentID,
		Name:     name,
		Kind:     kind,
		Content:  content,
	})
	if err != nil {
		s.mu.Lock()
		s.setTreeLocked(tree.Remove(s.tree, pending.ID))
		s.mu.Unlock()
		return nil, fmt.Errorf("upload: %w", err)
	}

	n := s.newNode(rec)
	if n.Content == "" {
		n.Content = content
	}

	s.mu.Lock()
	if _, exists := s.ix.Get(n.ID); exists {
		// A refresh already brought the server's copy in.
		s.setTreeLocked(tree.Remove(s.tree, pending.ID))
	} else if t, err := tree.Update(s.tree, pending.ID, func(*models.Node) *models.Node { return n }); err == nil {
		s.setTreeLocked(t)
	}
	s.mu.Unlock()

	s.reindex(n.ID)
	return n, nil
}

// Trash lists trashed nodes.
func (s *Service) Trash(ctx context.Context) ([]models.DocumentRecord, error) {
	recs, err := s.remote.ListTrash(ctx)
	if err != nil {
		return nil, fmt.Errorf("list trash: %w", err)
	}
	return recs, nil
}

// Restore brings a node back from the trash and puts it, with the
// descendants restored alongside it, back into the tree.
func (s *Service) Restore(ctx context.Context, id string) (*models.Node, error) {
	rec, err := s.remote.RestoreDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	records, err := s.remote.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	n, ok := tree.FindByID(tree.Build(records), rec.ID)
	if !ok {
		n = rec.ToNode()
	}

	s.mu.Lock()
	if _, exists := s.ix.Get(n.ID); !exists {
		parentID := rec.ParentID
		if p, ok := s.ix.Get(parentID); !ok || !p.IsFolder() {
			parentID = ""
		}
		if t, err := tree.Insert(s.tree, parentID, n); err == nil {
			s.setTreeLocked(t)
		}
	}
	merged := s.tree
	s.mu.Unlock()

	s.reindexAll(merged)
	return n, nil
}

// Purge deletes a trashed node permanently.
func (s *Service) Purge(ctx context.Context, id string) error {
	if err := s.remote.PurgeDocument(ctx, id); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}
