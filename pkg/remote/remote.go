// Package remote talks to the document store and chat service that back the
// workspace.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// ErrUnavailable matches every *UnavailableError.
var ErrUnavailable = errors.New("remote unavailable")

// UnavailableError is a transport or server failure of a remote call.
// Retryable is false for failures that repeating the call cannot fix.
type UnavailableError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// IsRetryable reports whether err is a remote failure worth retrying.
func IsRetryable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue) && ue.Retryable
}

// Upload is a file handed to the store in one call.
type Upload struct {
	ParentID string      `json:"parentId,omitempty"`
	Name     string      `json:"name"`
	Kind     models.Kind `json:"kind"`
	Content  string      `json:"content"`
}

// DocumentStore is the request/response side of the remote collaborator.
// Missing documents are reported as errors matching models.ErrNodeNotFound.
type DocumentStore interface {
	ListDocuments(ctx context.Context) ([]models.DocumentRecord, error)
	GetDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	CreateDocument(ctx context.Context, parentID, name string, kind models.Kind) (*models.DocumentRecord, error)
	// UpdateDocument changes only the fields that are non-nil: content
	// replaces the body and name renames.
	UpdateDocument(ctx context.Context, id string, content, name *string) (*models.DocumentRecord, error)
	// DeleteDocument moves the document (and its subtree) to the trash.
	DeleteDocument(ctx context.Context, id string) error
	UploadDocument(ctx context.Context, up Upload) (*models.DocumentRecord, error)

	ListTrash(ctx context.Context) ([]models.DocumentRecord, error)
	RestoreDocument(ctx context.Context, id string) (*models.DocumentRecord, error)
	PurgeDocument(ctx context.Context, id string) error

	AcquireLock(ctx context.Context, documentID string, actor models.Actor) (models.LockGrant, error)
	ReleaseLock(ctx context.Context, documentID string, actor models.Actor) error
}

// ChatService sends a message to an assistant session. The returned body is
// a chunked response in the data-line framing read by stream.Ingester; the
// caller must close it.
type ChatService interface {
	SendChatMessage(ctx context.Context, sessionID, text string) (io.ReadCloser, error)
}

// Client is the full remote collaborator.
type Client interface {
	DocumentStore
	ChatService
}
