package models

import (
	"fmt"
	"slices"
	"time"
)

// Kind discriminates folders from the two document flavours.
type Kind string

const (
	KindFolder   Kind = "folder"
	KindMarkdown Kind = "document-markdown"
	KindText     Kind = "document-text"
)

// IsDocument reports whether nodes of this kind carry content instead of children.
func (k Kind) IsDocument() bool {
	return k == KindMarkdown || k == KindText
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindFolder || k.IsDocument()
}

// Node is a single folder or document in the workspace tree.
//
// Nodes are treated as immutable once they are part of a tree: every tree
// operation copies the nodes along the path it changes and shares the rest.
// Folders use Children and never Content; documents use Content and never
// Children.
type Node struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Kind                Kind            `json:"kind"`
	Children            []*Node         `json:"children,omitempty"`
	Content             string          `json:"content,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
	CurrentVersionLabel string          `json:"currentVersionLabel,omitempty"`
	Versions            []VersionRecord `json:"versions,omitempty"`
	InIndex             bool            `json:"inIndex"`
}

// NewFolder returns an empty folder node.
func NewFolder(id, name string) *Node {
	return &Node{ID: id, Name: name, Kind: KindFolder, Children: []*Node{}}
}

// NewDocument returns a document node of the given document kind.
func NewDocument(id, name string, kind Kind, content string) *Node {
	return &Node{ID: id, Name: name, Kind: kind, Content: content}
}

// IsFolder reports whether the node holds children.
func (n *Node) IsFolder() bool {
	return n.Kind == KindFolder
}

// Validate checks the children/content exclusivity governed by Kind.
func (n *Node) Validate() error {
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q for %s", ErrInvalidNode, n.Kind, n.ID)
	}
	if n.IsFolder() && n.Content != "" {
		return fmt.Errorf("%w: folder %s has content", ErrInvalidNode, n.ID)
	}
	if !n.IsFolder() && len(n.Children) > 0 {
		return fmt.Errorf("%w: document %s has children", ErrInvalidNode, n.ID)
	}
	return nil
}

// Clone returns a shallow copy: slices are copied, child nodes are shared.
func (n *Node) Clone() *Node {
	c := *n
	if n.Children != nil {
		c.Children = slices.Clone(n.Children)
	}
	c.Tags = slices.Clone(n.Tags)
	c.Versions = slices.Clone(n.Versions)
	return &c
}

// HasTag reports whether the node carries tag.
func (n *Node) HasTag(tag string) bool {
	return slices.Contains(n.Tags, tag)
}

// VersionState is the lifecycle position of a version record.
type VersionState string

const (
	VersionWorking    VersionState = "working"
	VersionLocked     VersionState = "locked"
	VersionArchived   VersionState = "archived"
	VersionDeprecated VersionState = "deprecated"
)

// Rank orders states along working → locked → archived → deprecated.
// Unknown states rank -1.
func (s VersionState) Rank() int {
	switch s {
	case VersionWorking:
		return 0
	case VersionLocked:
		return 1
	case VersionArchived:
		return 2
	case VersionDeprecated:
		return 3
	}
	return -1
}

// VersionRecord is one entry of a document's version ledger.
type VersionRecord struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	State     VersionState `json:"state"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Author    string       `json:"author"`
}
