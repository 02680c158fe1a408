package models

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound   = errors.New("node not found")
	ErrParentNotFound = errors.New("parent not found")
	ErrInvalidNode    = errors.New("invalid node")
	ErrLockConflict   = errors.New("document is locked by another user")
)

// NodeError records the tree operation and node id that failed.
type NodeError struct {
	Op  string
	ID  string
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
