// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package dotpath turns flat lists of dotted field paths into trees

A request like

	?expand=author.address,comments&exclude=author.address.created_at

selects fields at several depths of a record graph. Build converts the flat paths into a Tree
that can be queried one level at a time while walking the graph:

	expand := dotpath.Build([]string{"author.address", "comments"})
	expand.Has("author")                      // true
	expand.IsLeaf("author")                   // false, only partially selected
	expand.Sub("author").IsLeaf("address")    // true

A segment can be a leaf and carry children at the same time, e.g. for "author" and "author.address".
Trees are immutable after construction and safe for concurrent reads.
*/
package dotpath

import (
	"sort"
	"strings"
)

// Tree is a set of dotted paths organised by segment. The zero value is the empty tree
// which selects nothing.
type Tree struct {
	nodes map[string]*node
}

type node struct {
	leaf bool
	sub  Tree
}

// Build creates a tree from a list of dotted paths. Empty paths and empty segments are ignored.
func Build(paths []string) Tree {
	t := Tree{}
	for _, path := range paths {
		var segments []string
		for _, segment := range strings.Split(path, ".") {
			if segment != "" {
				segments = append(segments, segment)
			}
		}
		if len(segments) == 0 {
			continue
		}
		t.insert(segments)
	}
	return t
}

// Parse splits raw request values into individual paths. Every value may itself
// be a comma-separated list. Whitespace around paths is dropped, and so are empty paths.
func Parse(values ...string) []string {
	var paths []string
	for _, value := range values {
		for _, path := range strings.Split(value, ",") {
			path = strings.TrimSpace(path)
			if path != "" {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// FromValues is a shortcut for Build(Parse(values...))
func FromValues(values ...string) Tree {
	return Build(Parse(values...))
}

func (t *Tree) insert(segments []string) {
	if t.nodes == nil {
		t.nodes = map[string]*node{}
	}
	n, ok := t.nodes[segments[0]]
	if !ok {
		n = &node{}
		t.nodes[segments[0]] = n
	}
	if len(segments) == 1 {
		n.leaf = true
		return
	}
	n.sub.insert(segments[1:])
}

// Len returns the number of segments on the top level
func (t Tree) Len() int {
	return len(t.nodes)
}

// IsEmpty returns true if the tree selects nothing
func (t Tree) IsEmpty() bool {
	return len(t.nodes) == 0
}

// Has returns true if name is selected on the top level, either fully or partially.
func (t Tree) Has(name string) bool {
	_, ok := t.nodes[name]
	return ok
}

// IsLeaf returns true if a path ends at name on the top level, i.e. name is selected
// as a whole.
func (t Tree) IsLeaf(name string) bool {
	n, ok := t.nodes[name]
	return ok && n.leaf
}

// Sub returns the sub-tree rooted at name. If name is not selected or has no deeper
// paths, the empty tree is returned.
func (t Tree) Sub(name string) Tree {
	if n, ok := t.nodes[name]; ok {
		return n.sub
	}
	return Tree{}
}

// Keys returns the top level segments in lexicographical order
func (t Tree) Keys() []string {
	keys := make([]string, 0, len(t.nodes))
	for key := range t.nodes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Lookup walks the dotted path through the tree. It returns the sub-tree at the end of the
// path and true if every segment was found.
func (t Tree) Lookup(path string) (Tree, bool) {
	current := t
	segments := strings.Split(path, ".")
	for i, segment := range segments {
		n, ok := current.nodes[segment]
		if !ok {
			return Tree{}, false
		}
		if i == len(segments)-1 {
			return n.sub, true
		}
		current = n.sub
	}
	return Tree{}, false
}

// Contains returns true if path was one of the paths the tree was built from.
func (t Tree) Contains(path string) bool {
	segments := strings.Split(path, ".")
	current := t
	for i, segment := range segments {
		n, ok := current.nodes[segment]
		if !ok {
			return false
		}
		if i == len(segments)-1 {
			return n.leaf
		}
		current = n.sub
	}
	return false
}

// Paths returns all complete paths of the tree in lexicographical order
func (t Tree) Paths() []string {
	var paths []string
	for _, key := range t.Keys() {
		n := t.nodes[key]
		if n.leaf {
			paths = append(paths, key)
		}
		for _, path := range n.sub.Paths() {
			paths = append(paths, key+"."+path)
		}
	}
	return paths
}

// String returns the comma separated paths, suitable for logging
func (t Tree) String() string {
	return strings.Join(t.Paths(), ",")
}
