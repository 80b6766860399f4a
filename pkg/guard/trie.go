package guard

import (
	"path"
	"strings"
)

// MatchKind tells how a path found its policy
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPrefix  MatchKind = "prefix"
	MatchDefault MatchKind = "default"
)

type trieNode struct {
	children map[string]*trieNode
	policy   *Policy
	pattern  string
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// routeTrie maps path segments to policies. A pattern governs its own path
// exactly and every path below it, but never a sibling that only shares a
// string prefix: /manager covers /manager/users, not /managers.
type routeTrie struct {
	root *trieNode
}

func newRouteTrie() *routeTrie {
	return &routeTrie{root: newTrieNode()}
}

// splitPath drops the query, resolves "." and ".." segments and drops
// empty segments and any trailing slash
func splitPath(raw string) []string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	parts := strings.Split(path.Clean("/"+raw), "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

func (t *routeTrie) insert(pattern string, policy Policy) {
	node := t.root
	for _, seg := range splitPath(pattern) {
		child, ok := node.children[seg]
		if !ok {
			child = newTrieNode()
			node.children[seg] = child
		}
		node = child
	}
	p := policy
	node.policy = &p
	node.pattern = pattern
}

// lookup returns the deepest policy on the path. The root pattern "/" only
// ever matches exactly.
func (t *routeTrie) lookup(path string) (Policy, string, MatchKind, bool) {
	segments := splitPath(path)
	if len(segments) == 0 {
		if t.root.policy != nil {
			return *t.root.policy, t.root.pattern, MatchExact, true
		}
		return Policy{}, "", "", false
	}

	var (
		best    *trieNode
		matched int
	)
	node := t.root
	for i, seg := range segments {
		child, ok := node.children[seg]
		if !ok {
			break
		}
		node = child
		if node.policy != nil {
			best, matched = node, i+1
		}
	}

	if best == nil {
		return Policy{}, "", "", false
	}
	kind := MatchPrefix
	if matched == len(segments) {
		kind = MatchExact
	}
	return *best.policy, best.pattern, kind, true
}
