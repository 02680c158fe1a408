package remote

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattsolo1/grove-wiki/pkg/models"
	"github.com/mattsolo1/grove-wiki/pkg/stream"
)

// Memory is an in-process Client. It keeps the same rules as the server
// (trash, locks, parent checks) and is used for offline work and tests.
// Safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]*models.DocumentRecord
	order []string
	seq   int
	fail  map[string][]error
	calls map[string]int

	// Now returns the timestamp stamped on writes.
	Now func() time.Time
	// Reply produces the text fragments streamed back for a chat message.
	// The default echoes the message word by word.
	Reply func(sessionID, text string) []string
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]*models.DocumentRecord),
		fail:  make(map[string][]error),
		calls: make(map[string]int),
		Now:   time.Now,
	}
}

// Seed bulk-loads records, keeping their ids and order.
func (m *Memory) Seed(records ...models.DocumentRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if _, ok := m.docs[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		m.docs[r.ID] = copyRecord(&r)
	}
}

// FailNext makes the next call of op return err instead of running. Ops are
// named after the methods, e.g. "ListDocuments".
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = append(m.fail[op], err)
}

// Calls reports how many times op was invoked, failed calls included.
func (m *Memory) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// enter records the call and pops an injected failure. Callers hold m.mu.
func (m *Memory) enter(op string) error {
	m.calls[op]++
	if queue := m.fail[op]; len(queue) > 0 {
		m.fail[op] = queue[1:]
		return queue[0]
	}
	return nil
}

func (m *Memory) ListDocuments(ctx context.Context) ([]models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListDocuments"); err != nil {
		return nil, err
	}

	out := make([]models.DocumentRecord, 0, len(m.order))
	for _, id := range m.order {
		if r := m.docs[id]; r.DeletedAt == nil {
			out = append(out, *copyRecord(r))
		}
	}
	return out, nil
}

func (m *Memory) GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetDocument"); err != nil {
		return nil, err
	}

	r, err := m.live("get document", id)
	if err != nil {
		return nil, err
	}
	return copyRecord(r), nil
}

func (m *Memory) CreateDocument(ctx context.Context, parentID, name string, kind models.Kind) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CreateDocument"); err != nil {
		return nil, err
	}
	return m.create("create document", parentID, name, kind, "")
}

func (m *Memory) UploadDocument(ctx context.Context, up Upload) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UploadDocument"); err != nil {
		return nil, err
	}
	if !up.Kind.IsDocument() {
		return nil, &models.NodeError{Op: "upload document", ID: up.Name, Err: models.ErrInvalidNode}
	}
	return m.create("upload document", up.ParentID, up.Name, up.Kind, up.Content)
}

func (m *Memory) create(op, parentID, name string, kind models.Kind, content string) (*models.DocumentRecord, error) {
	if !kind.Valid() || strings.TrimSpace(name) == "" {
		return nil, &models.NodeError{Op: op, ID: name, Err: models.ErrInvalidNode}
	}
	if parentID != "" {
		p, ok := m.docs[parentID]
		if !ok || p.DeletedAt != nil || p.Kind != models.KindFolder {
			return nil, &models.NodeError{Op: op, ID: parentID, Err: models.ErrParentNotFound}
		}
	}

	m.seq++
	r := &models.DocumentRecord{
		ID:        fmt.Sprintf("doc-%d", m.seq),
		ParentID:  parentID,
		Name:      name,
		Kind:      kind,
		Content:   content,
		UpdatedAt: m.Now(),
	}
	m.docs[r.ID] = r
	m.order = append(m.order, r.ID)
	return copyRecord(r), nil
}

func (m *Memory) UpdateDocument(ctx context.Context, id string, content, name *string) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("UpdateDocument"); err != nil {
		return nil, err
	}

	r, err := m.live("update document", id)
	if err != nil {
		return nil, err
	}
	if name != nil {
		if strings.TrimSpace(*name) == "" {
			return nil, &models.NodeError{Op: "update document", ID: id, Err: models.ErrInvalidNode}
		}
		r.Name = *name
	}
	if content != nil && r.Kind.IsDocument() {
		r.Content = *content
	}
	r.UpdatedAt = m.Now()
	return copyRecord(r), nil
}

func (m *Memory) DeleteDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("DeleteDocument"); err != nil {
		return err
	}

	if _, err := m.live("delete document", id); err != nil {
		return err
	}
	now := m.Now()
	for _, sub := range m.subtree(id) {
		if r := m.docs[sub]; r.DeletedAt == nil {
			r.DeletedAt = &now
			r.Lock = models.LockStatus{}
		}
	}
	return nil
}

// ListTrash returns trashed records whose parent is not itself trashed.
func (m *Memory) ListTrash(ctx context.Context) ([]models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ListTrash"); err != nil {
		return nil, err
	}

	var out []models.DocumentRecord
	for _, id := range m.order {
		r := m.docs[id]
		if r.DeletedAt == nil {
			continue
		}
		if p, ok := m.docs[r.ParentID]; ok && p.DeletedAt != nil {
			continue
		}
		out = append(out, *copyRecord(r))
	}
	return out, nil
}

// RestoreDocument brings a trashed record back together with the
// descendants trashed alongside it. A record whose parent is gone is
// restored at the root.
func (m *Memory) RestoreDocument(ctx context.Context, id string) (*models.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RestoreDocument"); err != nil {
		return nil, err
	}

	r, ok := m.docs[id]
	if !ok || r.DeletedAt == nil {
		return nil, &models.NodeError{Op: "restore document", ID: id, Err: models.ErrNodeNotFound}
	}
	deletedAt := *r.DeletedAt
	for _, sub := range m.subtree(id) {
		if d := m.docs[sub]; d.DeletedAt != nil && d.DeletedAt.Equal(deletedAt) {
			d.DeletedAt = nil
		}
	}
	if p, ok := m.docs[r.ParentID]; r.ParentID != "" && (!ok || p.DeletedAt != nil) {
		r.ParentID = ""
	}
	r.UpdatedAt = m.Now()
	return copyRecord(r), nil
}

func (m *Memory) PurgeDocument(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PurgeDocument"); err != nil {
		return err
	}

	r, ok := m.docs[id]
	if !ok || r.DeletedAt == nil {
		return &models.NodeError{Op: "purge document", ID: id, Err: models.ErrNodeNotFound}
	}
	gone := make(map[string]struct{})
	for _, sub := range m.subtree(id) {
		gone[sub] = struct{}{}
		delete(m.docs, sub)
	}
	m.order = slices.DeleteFunc(m.order, func(id string) bool {
		_, ok := gone[id]
		return ok
	})
	return nil
}

// AcquireLock grants the lock when it is free or already held by actor.
func (m *Memory) AcquireLock(ctx context.Context, documentID string, actor models.Actor) (models.LockGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("AcquireLock"); err != nil {
		return models.LockGrant{}, err
	}

	r, err := m.live("acquire lock", documentID)
	if err != nil {
		return models.LockGrant{}, err
	}
	if r.Lock.Held && r.Lock.HolderID != actor.ID {
		return models.LockGrant{Granted: false, Status: r.Lock}, nil
	}
	r.Lock = models.LockStatus{Held: true, HolderID: actor.ID, HolderDisplayName: actor.DisplayName}
	return models.LockGrant{Granted: true, Status: r.Lock}, nil
}

// ReleaseLock frees a lock held by actor. Releasing a free lock succeeds;
// releasing someone else's lock is a conflict.
func (m *Memory) ReleaseLock(ctx context.Context, documentID string, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ReleaseLock"); err != nil {
		return err
	}

	r, err := m.live("release lock", documentID)
	if err != nil {
		return err
	}
	switch {
	case !r.Lock.Held:
		return nil
	case r.Lock.HolderID != actor.ID:
		return &models.NodeError{Op: "release lock", ID: documentID, Err: models.ErrLockConflict}
	}
	r.Lock = models.LockStatus{}
	return nil
}

// SendChatMessage streams the Reply fragments as data lines followed by the
// sentinel.
func (m *Memory) SendChatMessage(ctx context.Context, sessionID, text string) (io.ReadCloser, error) {
	m.mu.Lock()
	err := m.enter("SendChatMessage")
	reply := m.Reply
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if reply == nil {
		reply = echo
	}

	var b strings.Builder
	for _, part := range reply(sessionID, text) {
		line, err := stream.FormatFrame(part)
		if err != nil {
			return nil, fmt.Errorf("encode reply: %w", err)
		}
		b.WriteString(line)
	}
	b.WriteString(stream.FormatDone())
	return io.NopCloser(strings.NewReader(b.String())), nil
}

func echo(_, text string) []string {
	words := strings.SplitAfter(text, " ")
	return append([]string{"echo: "}, words...)
}

func (m *Memory) live(op, id string) (*models.DocumentRecord, error) {
	r, ok := m.docs[id]
	if !ok || r.DeletedAt != nil {
		return nil, &models.NodeError{Op: op, ID: id, Err: models.ErrNodeNotFound}
	}
	return r, nil
}

// subtree returns id and the ids of all its descendants.
func (m *Memory) subtree(id string) []string {
	out := []string{id}
	for i := 0; i < len(out); i++ {
		for _, cand := range m.order {
			if r, ok := m.docs[cand]; ok && r.ParentID == out[i] {
				out = append(out, cand)
			}
		}
	}
	return out
}

func copyRecord(r *models.DocumentRecord) *models.DocumentRecord {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	c.Versions = slices.Clone(r.Versions)
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

var _ Client = (*Memory)(nil)
