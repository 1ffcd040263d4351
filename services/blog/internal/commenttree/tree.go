// Package commenttree assembles flat comment records into reply trees and
// keeps a client-side tree in step with pagination, new comments and
// deletions. It is pure and never touches storage.
package commenttree

import (
	"sort"

	"github.com/example/blog-platform/services/blog/internal/store"
)

// Node is a comment with its replies, nested to any depth.
type Node struct {
	store.Comment
	Replies []*Node `json:"replies"`
}

// Tree is an ordered list of top-level nodes.
type Tree []*Node

// BuildTree links flat records into a tree. Replies attach to parents present
// in the same batch; replies whose parent is absent are dropped. Top-level
// nodes keep encounter order. The second result is the number of top-level
// nodes.
func BuildTree(flat []store.Comment) (Tree, int) {
	byID := make(map[string]*Node, len(flat))
	order := make([]*Node, 0, len(flat))
	for _, c := range flat {
		if _, dup := byID[c.ID]; dup {
			continue
		}
		n := &Node{Comment: c, Replies: []*Node{}}
		byID[c.ID] = n
		order = append(order, n)
	}

	tree := Tree{}
	for _, n := range order {
		if n.ParentID == nil {
			tree = append(tree, n)
			continue
		}
		if parent, ok := byID[*n.ParentID]; ok && parent != n {
			parent.Replies = append(parent.Replies, n)
		}
	}
	return tree, len(tree)
}

// Flatten returns the records in depth-first order, parents before their
// replies. BuildTree(t.Flatten()) reproduces t.
func (t Tree) Flatten() []store.Comment {
	var out []store.Comment
	var walk func([]*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			out = append(out, n.Comment)
			walk(n.Replies)
		}
	}
	walk(t)
	return out
}

// Count returns the number of nodes at every depth.
func (t Tree) Count() int {
	total := 0
	for _, n := range t {
		total += 1 + Tree(n.Replies).Count()
	}
	return total
}

// Find returns the node with id at any depth.
func (t Tree) Find(id string) (*Node, bool) {
	for _, n := range t {
		if n.ID == id {
			return n, true
		}
		if found, ok := Tree(n.Replies).Find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// Merge folds a newly fetched batch into existing. Nodes only in existing are
// kept. Nodes only in batch are appended. Nodes in both take the batch record
// and the union of both reply lists. Reply lists are ordered by CreatedAt.
// Neither input is modified.
func Merge(existing, batch Tree) Tree {
	return mergeLevel(existing, batch, false)
}

func mergeLevel(existing, batch []*Node, sortByTime bool) []*Node {
	out := make([]*Node, 0, len(existing)+len(batch))
	index := make(map[string]int, len(existing)+len(batch))
	for _, n := range existing {
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = len(out)
		out = append(out, cloneNode(n))
	}
	for _, b := range batch {
		if i, ok := index[b.ID]; ok {
			cur := out[i]
			out[i] = &Node{Comment: b.Comment, Replies: mergeLevel(cur.Replies, b.Replies, true)}
			continue
		}
		index[b.ID] = len(out)
		out = append(out, cloneNode(b))
	}
	if sortByTime {
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	}
	return out
}

// AddComment inserts c into the tree: top-level comments go last, replies go
// last under their parent at any depth. It reports false, leaving the tree
// unchanged, when the parent is not in the tree.
func AddComment(t Tree, c store.Comment) (Tree, bool) {
	n := &Node{Comment: c, Replies: []*Node{}}
	if c.ParentID == nil {
		return append(t, n), true
	}
	parent, ok := t.Find(*c.ParentID)
	if !ok {
		return t, false
	}
	parent.Replies = append(parent.Replies, n)
	return t, true
}

// Remove deletes the node with id and its replies. It reports whether a node
// was removed.
func Remove(t Tree, id string) (Tree, bool) {
	for i, n := range t {
		if n.ID == id {
			return append(t[:i:i], t[i+1:]...), true
		}
		if replies, ok := Remove(Tree(n.Replies), id); ok {
			n.Replies = replies
			return t, true
		}
	}
	return t, false
}

func cloneNode(n *Node) *Node {
	c := &Node{Comment: n.Comment, Replies: make([]*Node, len(n.Replies))}
	for i, r := range n.Replies {
		c.Replies[i] = cloneNode(r)
	}
	return c
}
