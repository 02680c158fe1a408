package models

import "time"

// DocumentRecord is the wire shape of a folder or document returned by the
// remote document store. Listings are flat; ParentID links records together.
type DocumentRecord struct {
	ID                  string          `json:"id"`
	ParentID            string          `json:"parentId,omitempty"`
	Name                string          `json:"name"`
	Kind                Kind            `json:"kind"`
	Content             string          `json:"content,omitempty"`
	Tags                []string        `json:"tags,omitempty"`
	InIndex             bool            `json:"inIndex"`
	CurrentVersionLabel string          `json:"currentVersionLabel,omitempty"`
	Versions            []VersionRecord `json:"versions,omitempty"`
	Lock                LockStatus      `json:"lock"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	DeletedAt           *time.Time      `json:"deletedAt,omitempty"`
}

// ToNode converts the record into a detached tree node without children.
func (r *DocumentRecord) ToNode() *Node {
	n := &Node{
		ID:                  r.ID,
		Name:                r.Name,
		Kind:                r.Kind,
		Tags:                r.Tags,
		CurrentVersionLabel: r.CurrentVersionLabel,
		Versions:            r.Versions,
		InIndex:             r.InIndex,
	}
	if r.Kind == KindFolder {
		n.Children = []*Node{}
	} else {
		n.Content = r.Content
	}
	return n
}

// Actor identifies a user of the workspace.
type Actor struct {
	ID          string `json:"id" mapstructure:"id"`
	DisplayName string `json:"name" mapstructure:"name"`
}

// LockStatus is the server-side view of a document's edit lock.
type LockStatus struct {
	Held              bool   `json:"held"`
	HolderID          string `json:"holderId,omitempty"`
	HolderDisplayName string `json:"holderName,omitempty"`
}

// LockGrant is the authoritative answer to a lock request.
type LockGrant struct {
	Granted bool       `json:"granted"`
	Status  LockStatus `json:"status"`
}
