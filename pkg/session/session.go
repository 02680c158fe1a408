// Package session tracks the editable buffer of the open document and
// whether it has unsaved changes.
package session

import (
	"sync"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// EditSession is the ephemeral editing state of one open document.
type EditSession struct {
	DocumentID    string
	LiveContent   string
	SavedSnapshot string
}

// New opens a session whose buffer equals the fetched content.
func New(documentID, content string) EditSession {
	return EditSession{DocumentID: documentID, LiveContent: content, SavedSnapshot: content}
}

// IsDirty reports whether the buffer differs from the last saved content.
func (s EditSession) IsDirty() bool {
	return s.LiveContent != s.SavedSnapshot
}

// WithContent returns the session with a new buffer value.
func (s EditSession) WithContent(content string) EditSession {
	s.LiveContent = content
	return s
}

// MarkSaved returns the session with the buffer recorded as saved.
func (s EditSession) MarkSaved() EditSession {
	s.SavedSnapshot = s.LiveContent
	return s
}

// EditGate decides whether the buffer of documentID may be mutated. The lock
// coordinator implements it.
type EditGate interface {
	CanEdit(documentID string) bool
}

type alwaysEditable struct{}

func (alwaysEditable) CanEdit(string) bool { return true }

// Tracker owns the single active EditSession.
type Tracker struct {
	gate EditGate

	mu      sync.RWMutex
	session *EditSession
}

// NewTracker creates a tracker. A nil gate allows every edit.
func NewTracker(gate EditGate) *Tracker {
	if gate == nil {
		gate = alwaysEditable{}
	}
	return &Tracker{gate: gate}
}

// Open replaces the active session with a clean one for documentID.
func (t *Tracker) Open(documentID, content string) EditSession {
	s := New(documentID, content)
	t.mu.Lock()
	t.session = &s
	t.mu.Unlock()
	return s
}

// Close discards the active session.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.session = nil
	t.mu.Unlock()
}

// Current returns the active session.
func (t *Tracker) Current() (EditSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return EditSession{}, false
	}
	return *t.session, true
}

// ActiveDocumentID returns the id of the open document, or "".
func (t *Tracker) ActiveDocumentID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.session == nil {
		return ""
	}
	return t.session.DocumentID
}

// IsDirty reports whether the active session has unsaved changes.
func (t *Tracker) IsDirty() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session != nil && t.session.IsDirty()
}

// SetContent updates the live buffer. It fails with models.ErrLockConflict
// when the gate does not allow editing.
func (t *Tracker) SetContent(content string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return ErrNoSession
	}
	if !t.gate.CanEdit(t.session.DocumentID) {
		return &models.NodeError{Op: "edit", ID: t.session.DocumentID, Err: models.ErrLockConflict}
	}
	s := t.session.WithContent(content)
	t.session = &s
	return nil
}

// MarkSaved records content as persisted for documentID. Content typed after
// the save was issued stays dirty. It returns false when documentID is no
// longer the active document.
func (t *Tracker) MarkSaved(documentID, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil || t.session.DocumentID != documentID {
		return false
	}
	s := *t.session
	s.SavedSnapshot = content
	t.session = &s
	return true
}
