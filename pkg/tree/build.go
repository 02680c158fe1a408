package tree

import (
	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// Build assembles a tree from a flat listing. Records keep their listing
// order among siblings. A record whose parent is missing, or is not a folder,
// is attached at the root so that nothing the server reports is lost. A
// parent cycle is broken at its first listed member, which becomes a root.
func Build(records []models.DocumentRecord) Tree {
	nodes := make(map[string]*models.Node, len(records))
	for i := range records {
		nodes[records[i].ID] = records[i].ToNode()
	}

	parents := make(map[string]string, len(records))
	for i := range records {
		r := &records[i]
		if p, ok := nodes[r.ParentID]; ok && r.ParentID != r.ID && p.IsFolder() {
			parents[r.ID] = r.ParentID
		}
	}
	for i := range records {
		if id := records[i].ID; inCycle(id, parents) {
			delete(parents, id)
		}
	}

	root := make(Tree, 0)
	for i := range records {
		n := nodes[records[i].ID]
		if pid, ok := parents[n.ID]; ok {
			p := nodes[pid]
			p.Children = append(p.Children, n)
			continue
		}
		root = append(root, n)
	}
	return root
}

// inCycle reports whether following parent links from id leads back to id.
func inCycle(id string, parents map[string]string) bool {
	seen := map[string]struct{}{id: {}}
	for cur, ok := parents[id]; ok; cur, ok = parents[cur] {
		if cur == id {
			return true
		}
		if _, loop := seen[cur]; loop {
			return false
		}
		seen[cur] = struct{}{}
	}
	return false
}
