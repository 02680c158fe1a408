package tree

import (
	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// Index is a flat id → node view of a Tree with parent links. It is built
// once per tree value and never updated; rebuild it after a mutation.
type Index struct {
	nodes   map[string]*models.Node
	parents map[string]string
}

// NewIndex indexes every node of t.
func NewIndex(t Tree) *Index {
	ix := &Index{
		nodes:   make(map[string]*models.Node),
		parents: make(map[string]string),
	}
	ix.add(t, "")
	return ix
}

func (ix *Index) add(nodes []*models.Node, parentID string) {
	for _, n := range nodes {
		ix.nodes[n.ID] = n
		ix.parents[n.ID] = parentID
		if len(n.Children) > 0 {
			ix.add(n.Children, n.ID)
		}
	}
}

// Get returns the node with the given id.
func (ix *Index) Get(id string) (*models.Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Parent returns the parent id of id; root nodes have an empty parent.
func (ix *Index) Parent(id string) (string, bool) {
	p, ok := ix.parents[id]
	return p, ok
}

// Path returns the names from the root down to id.
func (ix *Index) Path(id string) []string {
	var names []string
	for cur := id; cur != ""; {
		n, ok := ix.nodes[cur]
		if !ok {
			return nil
		}
		names = append([]string{n.Name}, names...)
		cur = ix.parents[cur]
	}
	return names
}

// Len returns the number of indexed nodes.
func (ix *Index) Len() int {
	return len(ix.nodes)
}
