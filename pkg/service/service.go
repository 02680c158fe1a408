// Package service is the workspace engine. It owns the document tree, the
// open document's edit session and lock, and the assistant chat, and is the
// only way callers change any of them.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-wiki/pkg/ledger"
	"github.com/mattsolo1/grove-wiki/pkg/lock"
	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/remote"
	"github.com/mattsolo1/grove-wiki/pkg/search"
	"github.com/mattsolo1/grove-wiki/pkg/session"
	"github.com/mattsolo1/grove-wiki/pkg/stream"
	wikisync "github.com/mattsolo1/grove-wiki/pkg/sync"
	"github.com/mattsolo1/grove-wiki/pkg/tree"
)

// ErrIndexDisabled is returned by Search when no index is configured.
var ErrIndexDisabled = errors.New("knowledge index disabled")

// Config holds service configuration
type Config struct {
	// Actor is the user this workspace acts for.
	Actor models.Actor
	// ChatSession pins the assistant session id. A new id is generated when
	// empty.
	ChatSession string
	// DeleteConcurrency bounds parallel remote deletes in DeleteMany.
	DeleteConcurrency int
}

// Deps are the collaborators of the engine.
type Deps struct {
	Remote    remote.Client
	Confirmer session.Confirmer
	// Index is optional.
	Index  *search.Index
	Logger *logrus.Entry
}

// Service is the workspace engine. Safe for concurrent use.
type Service struct {
	cfg      Config
	remote   remote.Client
	index    *search.Index
	logger   *logrus.Entry
	syncer   *wikisync.Syncer
	locks    *lock.Coordinator
	tracker  *session.Tracker
	guard    *session.Guard
	ingester *stream.Ingester
	chatID   string

	mu   sync.RWMutex
	tree tree.Tree
	ix   *tree.Index
	rev  uint64
}

// New creates a new workspace engine with an empty tree.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Remote == nil {
		return nil, errors.New("service: remote client is required")
	}
	if cfg.Actor.ID == "" {
		return nil, errors.New("service: actor id is required")
	}
	if cfg.DeleteConcurrency <= 0 {
		cfg.DeleteConcurrency = 4
	}
	logger := deps.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}

	locks := lock.NewCoordinator(deps.Remote, cfg.Actor, logger)
	tracker := session.NewTracker(locks)
	chatID := cfg.ChatSession
	if chatID == "" {
		chatID = uuid.NewString()
	}

	return &Service{
		cfg:      cfg,
		remote:   deps.Remote,
		index:    deps.Index,
		logger:   logger.WithField("component", "service"),
		syncer:   wikisync.NewSyncer(deps.Remote, logger),
		locks:    locks,
		tracker:  tracker,
		guard:    session.NewGuard(tracker, deps.Confirmer, logger),
		ingester: stream.NewIngester(logger),
		chatID:   chatID,
		tree:     tree.Tree{},
		ix:       tree.NewIndex(nil),
	}, nil
}

// Close closes the service
func (s *Service) Close() error {
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Actor returns the user the workspace acts for.
func (s *Service) Actor() models.Actor {
	return s.cfg.Actor
}

// Tree returns the current tree. The value is never modified afterwards.
func (s *Service) Tree() tree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// Lookup finds a node by id.
func (s *Service) Lookup(id string) (*models.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.Get(id)
}

// Path returns the names from the root down to id.
func (s *Service) Path(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ix.Path(id)
}

// snapshot returns the tree with its revision.
func (s *Service) snapshot() (tree.Tree, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree, s.rev
}

// setTreeLocked installs t. Callers hold s.mu for writing.
func (s *Service) setTreeLocked(t tree.Tree) {
	s.tree = t
	s.ix = tree.NewIndex(t)
	s.rev++
}

// Refresh fetches the listing from the server and merges it into the tree.
// On failure the tree is left as it was.
func (s *Service) Refresh(ctx context.Context) (*wikisync.Report, error) {
	local, rev := s.snapshot()
	res, err := s.syncer.Refresh(ctx, local)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}

	s.mu.Lock()
	if s.rev != rev {
		// The tree moved on while the listing was in flight.
		res = s.syncer.Reconcile(s.tree, res.Records)
	}
	s.setTreeLocked(res.Tree)
	merged := s.tree
	s.mu.Unlock()

	s.reindexAll(merged)
	return res.Report, nil
}

// Versions returns the version ledger of a document, newest first.
func (s *Service) Versions(id string) ([]models.VersionRecord, error) {
	n, ok := s.Lookup(id)
	if !ok {
		return nil, &models.NodeError{Op: "versions", ID: id, Err: models.ErrNodeNotFound}
	}
	return ledger.HistoryOf(n), nil
}

// CurrentVersion returns the record the document's current label points at.
func (s *Service) CurrentVersion(id string) (models.VersionRecord, bool) {
	n, ok := s.Lookup(id)
	if !ok {
		return models.VersionRecord{}, false
	}
	return ledger.CurrentOf(n)
}

// Search queries the knowledge index.
func (s *Service) Search(query string, opts *search.Options) ([]search.Hit, error) {
	if s.index == nil {
		return nil, ErrIndexDisabled
	}
	hits, err := s.index.Search(query, opts)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	return hits, nil
}

func (s *Service) reindexAll(t tree.Tree) {
	if s.index == nil {
		return
	}
	n, err := s.index.Reindex(t)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to rebuild knowledge index")
		return
	}
	s.logger.WithField("documents", n).Debug("Rebuilt knowledge index")
}

func (s *Service) reindex(id string) {
	if s.index == nil {
		return
	}
	s.mu.RLock()
	n, ok := s.ix.Get(id)
	path := s.ix.Path(id)
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.index.IndexNode(n, path); err != nil {
		s.logger.WithError(err).WithField("document", id).Warn("Failed to index document")
	}
}

func (s *Service) unindex(ids []string) {
	if s.index == nil {
		return
	}
	for _, id := range ids {
		if err := s.index.RemoveDocument(id); err != nil {
			s.logger.WithError(err).WithField("document", id).Warn("Failed to remove document from index")
		}
	}
}
