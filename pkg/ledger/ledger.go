// Package ledger reads the version history attached to a document.
//
// The ledger is server-owned. Client code only reads it, with one exception:
// Initial seeds the single-entry ledger of a document the client has just
// created.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// InitialLabel is the label given to the first version of a new document.
const InitialLabel = "V1.0"

// Badge is the display form of a version state.
type Badge struct {
	Label string
	Tone  string
}

var badges = map[models.VersionState]Badge{
	models.VersionWorking:    {Label: "Working", Tone: "success"},
	models.VersionLocked:     {Label: "Locked", Tone: "warning"},
	models.VersionArchived:   {Label: "Archived", Tone: "default"},
	models.VersionDeprecated: {Label: "Deprecated", Tone: "error"},
}

// BadgeFor maps a state to its badge. Unknown states render as themselves.
func BadgeFor(state models.VersionState) Badge {
	if b, ok := badges[state]; ok {
		return b
	}
	return Badge{Label: string(state), Tone: "default"}
}

// CurrentOf returns the record whose label matches the node's current label.
func CurrentOf(n *models.Node) (models.VersionRecord, bool) {
	if n == nil || n.CurrentVersionLabel == "" {
		return models.VersionRecord{}, false
	}
	for _, v := range n.Versions {
		if v.Label == n.CurrentVersionLabel {
			return v, true
		}
	}
	return models.VersionRecord{}, false
}

// HistoryOf returns the ledger in stored order (newest first). The returned
// slice is a copy.
func HistoryOf(n *models.Node) []models.VersionRecord {
	if n == nil {
		return nil
	}
	out := make([]models.VersionRecord, len(n.Versions))
	copy(out, n.Versions)
	return out
}

// Initial builds the single-entry ledger for a freshly created document and
// applies it to a copy of n.
func Initial(n *models.Node, author string, now time.Time) *models.Node {
	c := n.Clone()
	c.CurrentVersionLabel = InitialLabel
	c.Versions = []models.VersionRecord{{
		ID:        uuid.NewString(),
		Label:     InitialLabel,
		State:     models.VersionWorking,
		UpdatedAt: now,
		Author:    author,
	}}
	return c
}

// Validate checks that exactly one record carries the current label and
// that every state is known.
func Validate(n *models.Node) error {
	if len(n.Versions) == 0 {
		return nil
	}
	matches := 0
	for _, v := range n.Versions {
		if v.State.Rank() < 0 {
			return fmt.Errorf("version %s: unknown state %q", v.Label, v.State)
		}
		if v.Label == n.CurrentVersionLabel {
			matches++
		}
	}
	if matches != 1 {
		return fmt.Errorf("document %s: %d versions labelled %q, want 1", n.ID, matches, n.CurrentVersionLabel)
	}
	return nil
}
