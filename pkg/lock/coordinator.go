// Package lock tracks the exclusive edit lock of the open document.
//
// The server is the arbiter: a request is a round trip that returns granted
// or denied, and the local state only ever reflects that answer.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// State is the lock state of the open document as seen by this client.
type State int

const (
	Unlocked State = iota
	LockedByMe
	LockedByOther
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case LockedByMe:
		return "locked-by-me"
	case LockedByOther:
		return "locked-by-other"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrNoDocument is returned when no document has been attached with Reset.
var ErrNoDocument = errors.New("no document open")

// ErrSuperseded is returned when the open document changed while a lock
// request was in flight.
var ErrSuperseded = errors.New("document switched during lock request")

// Arbiter is the server side of the lock protocol.
type Arbiter interface {
	AcquireLock(ctx context.Context, documentID string, actor models.Actor) (models.LockGrant, error)
	ReleaseLock(ctx context.Context, documentID string, actor models.Actor) error
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	DocumentID string
	State      State
	HolderName string
}

// Coordinator holds the lock state for one open document at a time.
type Coordinator struct {
	arbiter Arbiter
	me      models.Actor
	logger  *logrus.Entry

	mu         sync.Mutex
	documentID string
	generation uint64
	state      State
	holderName string
}

// NewCoordinator creates a coordinator acting on behalf of me.
func NewCoordinator(arbiter Arbiter, me models.Actor, logger *logrus.Entry) *Coordinator {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return &Coordinator{
		arbiter: arbiter,
		me:      me,
		logger:  logger.WithField("component", "lock"),
	}
}

// Reset attaches the coordinator to documentID using the lock status that was
// fetched with the document. An empty documentID detaches it.
func (c *Coordinator) Reset(documentID string, status models.LockStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.documentID = documentID
	c.generation++
	c.applyLocked(status)
}

func (c *Coordinator) applyLocked(status models.LockStatus) {
	switch {
	case !status.Held:
		c.state, c.holderName = Unlocked, ""
	case status.HolderID == c.me.ID:
		c.state, c.holderName = LockedByMe, c.me.DisplayName
	default:
		c.state, c.holderName = LockedByOther, status.HolderDisplayName
	}
}

// Status returns the current state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{DocumentID: c.documentID, State: c.state, HolderName: c.holderName}
}

// CanEdit reports whether the buffer of documentID may be mutated. A lock
// held on any other document does not count.
func (c *Coordinator) CanEdit(documentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return documentID != "" && c.documentID == documentID && c.state == LockedByMe
}

// Request asks the server for the lock. While another actor holds it the
// request is rejected locally with models.ErrLockConflict and no state
// changes. A denial from the server moves to LockedByOther and also returns
// models.ErrLockConflict.
func (c *Coordinator) Request(ctx context.Context) error {
	c.mu.Lock()
	docID, gen, state := c.documentID, c.generation, c.state
	c.mu.Unlock()

	switch {
	case docID == "":
		return ErrNoDocument
	case state == LockedByMe:
		return nil
	case state == LockedByOther:
		return &models.NodeError{Op: "lock", ID: docID, Err: models.ErrLockConflict}
	}

	grant, err := c.arbiter.AcquireLock(ctx, docID, c.me)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		if grant.Granted {
			if err := c.arbiter.ReleaseLock(context.WithoutCancel(ctx), docID, c.me); err != nil {
				c.logger.WithError(err).WithField("document", docID).Warn("Failed to release lock on superseded document")
			}
		}
		return ErrSuperseded
	}
	defer c.mu.Unlock()

	if grant.Granted {
		c.state, c.holderName = LockedByMe, c.me.DisplayName
		return nil
	}
	c.applyLocked(grant.Status)
	if c.state != LockedByOther {
		// Denied without a holder; treat as held by someone unknown.
		c.state, c.holderName = LockedByOther, grant.Status.HolderDisplayName
	}
	c.logger.WithFields(logrus.Fields{"document": docID, "holder": c.holderName}).Info("Lock request denied")
	return &models.NodeError{Op: "lock", ID: docID, Err: models.ErrLockConflict}
}

// Release gives the lock back. It is a no-op unless this client holds it.
// On failure the state is left untouched so the caller can retry.
func (c *Coordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	docID, gen, state := c.documentID, c.generation, c.state
	c.mu.Unlock()

	if state != LockedByMe {
		return nil
	}
	if err := c.arbiter.ReleaseLock(ctx, docID, c.me); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.state, c.holderName = Unlocked, ""
	}
	return nil
}
