// Package tree implements the workspace tree as an immutable value.
//
// Every mutation returns a new Tree. Nodes on the path to the change are
// copied and everything else is shared with the previous value, so a reader
// holding an older Tree never observes a partial update.
package tree

import (
	"slices"

	"github.com/mattsolo1/grove-wiki/pkg/models"
)

// Tree is the ordered root sequence of the workspace.
type Tree []*models.Node

// FindByID performs a depth-first search, visiting children in order.
func FindByID(t Tree, id string) (*models.Node, bool) {
	for _, n := range t {
		if n.ID == id {
			return n, true
		}
		if len(n.Children) > 0 {
			if found, ok := FindByID(n.Children, id); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// Insert appends n to the root sequence when parentID is empty, otherwise to
// the children of the folder identified by parentID.
func Insert(t Tree, parentID string, n *models.Node) (Tree, error) {
	if err := n.Validate(); err != nil {
		return t, &models.NodeError{Op: "insert", ID: n.ID, Err: err}
	}
	if _, exists := FindByID(t, n.ID); exists {
		return t, &models.NodeError{Op: "insert", ID: n.ID, Err: models.ErrInvalidNode}
	}
	if parentID == "" {
		out := make(Tree, 0, len(t)+1)
		out = append(out, t...)
		return append(out, n), nil
	}

	out, found, err := update(t, parentID, func(p *models.Node) (*models.Node, error) {
		if !p.IsFolder() {
			return nil, models.ErrParentNotFound
		}
		c := p.Clone()
		c.Children = append(c.Children, n)
		return c, nil
	})
	if err != nil {
		return t, &models.NodeError{Op: "insert", ID: parentID, Err: err}
	}
	if !found {
		return t, &models.NodeError{Op: "insert", ID: parentID, Err: models.ErrParentNotFound}
	}
	return out, nil
}

// Rename replaces the name of the node identified by id. Renaming to the
// current name returns t unchanged.
func Rename(t Tree, id, name string) (Tree, error) {
	return Update(t, id, func(n *models.Node) *models.Node {
		if n.Name == name {
			return n
		}
		c := n.Clone()
		c.Name = name
		return c
	})
}

// Update replaces the node identified by id with fn's result. fn receives the
// current node and must not modify it; returning it unchanged is a no-op.
func Update(t Tree, id string, fn func(*models.Node) *models.Node) (Tree, error) {
	out, found, err := update(t, id, func(n *models.Node) (*models.Node, error) {
		return fn(n), nil
	})
	if err != nil {
		return t, err
	}
	if !found {
		return t, &models.NodeError{Op: "update", ID: id, Err: models.ErrNodeNotFound}
	}
	return out, nil
}

// Remove drops the node identified by id together with its subtree. It is
// idempotent: removing an absent id returns t itself.
func Remove(t Tree, id string) Tree {
	out, _ := prune(t, func(nid string) bool { return nid == id })
	return out
}

// RemoveMany drops every node whose id is in ids, at any depth, in a single
// traversal.
func RemoveMany(t Tree, ids map[string]struct{}) Tree {
	if len(ids) == 0 {
		return t
	}
	out, _ := prune(t, func(nid string) bool {
		_, ok := ids[nid]
		return ok
	})
	return out
}

// Merge reconciles the local tree with a freshly fetched remote one.
//
// Remote order wins for root nodes present on both sides. A matched node, at
// any depth, takes the remote name, kind, index flag, tags and version
// ledger, but keeps its local children and its position, and keeps local
// content when that content is non-empty. Local nodes missing from the
// remote listing are kept unchanged; at the root they are appended in their
// local order. Remote nodes unknown locally are added under their remote
// parent, or at the root when that parent is not a local folder.
func Merge(local, remote Tree) Tree {
	rix := NewIndex(remote)
	byID := make(map[string]*models.Node, len(local))
	for _, n := range local {
		byID[n.ID] = n
	}

	seen := make(map[string]struct{}, len(remote))
	out := make(Tree, 0, len(remote)+len(local))
	for _, r := range remote {
		seen[r.ID] = struct{}{}
		l, ok := byID[r.ID]
		if !ok {
			out = append(out, r)
			continue
		}
		m := mergeNode(l, r)
		if children, changed := applyRemote(m.Children, rix); changed {
			m.Children = children
		}
		out = append(out, m)
	}
	for _, l := range local {
		if _, ok := seen[l.ID]; !ok {
			applied, _ := applyRemote([]*models.Node{l}, rix)
			out = append(out, applied[0])
		}
	}
	return adopt(out, remote, rix)
}

// applyRemote merges every node that has a remote counterpart. Subtrees
// without one are shared with the input.
func applyRemote(nodes []*models.Node, rix *Index) ([]*models.Node, bool) {
	var out []*models.Node
	for i, n := range nodes {
		m := n
		if r, ok := rix.Get(n.ID); ok {
			m = mergeNode(n, r)
		}
		if len(m.Children) > 0 {
			if children, changed := applyRemote(m.Children, rix); changed {
				if m == n {
					m = n.Clone()
				}
				m.Children = children
			}
		}
		if m != n {
			if out == nil {
				out = slices.Clone(nodes)
			}
			out[i] = m
		}
	}
	if out == nil {
		return nodes, false
	}
	return out, true
}

// adopt inserts remote nodes that t does not hold yet, together with the
// part of their remote subtree that is new as well. Every remote root is
// already in t.
func adopt(t Tree, remote Tree, rix *Index) Tree {
	known := NewIndex(t)
	isKnown := func(id string) bool {
		_, ok := known.Get(id)
		return ok
	}
	Walk(remote, func(r *models.Node, _ int) bool {
		if isKnown(r.ID) {
			return true
		}
		sub, _ := prune([]*models.Node{r}, isKnown)
		parentID, _ := rix.Parent(r.ID)
		next, err := Insert(t, parentID, sub[0])
		if err != nil {
			next, err = Insert(t, "", sub[0])
		}
		if err == nil {
			t = next
		}
		return false
	})
	return t
}

func mergeNode(local, remote *models.Node) *models.Node {
	m := remote.Clone()
	if m.IsFolder() {
		m.Content = ""
		m.Children = local.Children
		if m.Children == nil {
			m.Children = []*models.Node{}
		}
		return m
	}
	m.Children = nil
	if local.Content != "" {
		m.Content = local.Content
	}
	if len(m.Tags) == 0 {
		m.Tags = slices.Clone(local.Tags)
	}
	return m
}

// Walk visits every node depth-first in display order. Returning false from
// fn skips the node's children.
func Walk(t Tree, fn func(n *models.Node, depth int) bool) {
	walk(t, 0, fn)
}

func walk(nodes []*models.Node, depth int, fn func(*models.Node, int) bool) {
	for _, n := range nodes {
		if fn(n, depth) && len(n.Children) > 0 {
			walk(n.Children, depth+1, fn)
		}
	}
}

// SubtreeIDs lists n's id followed by the ids of all its descendants.
func SubtreeIDs(n *models.Node) []string {
	ids := []string{n.ID}
	walk(n.Children, 0, func(c *models.Node, _ int) bool {
		ids = append(ids, c.ID)
		return true
	})
	return ids
}

// Len counts all nodes in the tree.
func Len(t Tree) int {
	count := 0
	Walk(t, func(*models.Node, int) bool {
		count++
		return true
	})
	return count
}

func update(nodes []*models.Node, id string, fn func(*models.Node) (*models.Node, error)) ([]*models.Node, bool, error) {
	for i, n := range nodes {
		if n.ID == id {
			repl, err := fn(n)
			if err != nil {
				return nodes, true, err
			}
			if repl == n {
				return nodes, true, nil
			}
			out := slices.Clone(nodes)
			out[i] = repl
			return out, true, nil
		}
		if len(n.Children) == 0 {
			continue
		}
		children, found, err := update(n.Children, id, fn)
		if !found {
			continue
		}
		if err != nil || sameSlice(children, n.Children) {
			return nodes, true, err
		}
		c := n.Clone()
		c.Children = children
		out := slices.Clone(nodes)
		out[i] = c
		return out, true, nil
	}
	return nodes, false, nil
}

func prune(nodes []*models.Node, drop func(string) bool) ([]*models.Node, bool) {
	out := make([]*models.Node, 0, len(nodes))
	changed := false
	for _, n := range nodes {
		if drop(n.ID) {
			changed = true
			continue
		}
		if len(n.Children) > 0 {
			if children, ok := prune(n.Children, drop); ok {
				c := n.Clone()
				c.Children = children
				n = c
				changed = true
			}
		}
		out = append(out, n)
	}
	if !changed {
		return nodes, false
	}
	return out, true
}

func sameSlice(a, b []*models.Node) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}
