// Package trie builds the label trie (component B) from a configuration's
// zones: one arena of nodes addressed by integer index, with DNAME
// cross-edges stored as node references rather than owning pointers so that
// DNAME cycles need no special handling at build time.
package trie

import (
	"sort"

	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
)

// NodeIdx addresses a node in the Trie's arena.
type NodeIdx int

// Node is one label position in the trie.
type Node struct {
	Label model.Label
	// Children maps a label's canonical key (Label.String(), "*" for
	// wildcard) to the child node holding it.
	Children map[string]NodeIdx
	// Path is the full root-first Name at this node, memoized at
	// insertion time so callers don't need to walk parents to recover it.
	Path model.Name

	IsRecordOwner bool
	// DNAMETarget is the node reached by this owner's DNAME record, if
	// any. A reference (index), not an owning relationship.
	DNAMETarget *NodeIdx
}

// Trie is the arena of all Nodes reachable from Root (index 0).
type Trie struct {
	Nodes []Node
}

const rootIdx NodeIdx = 0

// Root returns the index of the root node (the empty name).
func (t *Trie) Root() NodeIdx { return rootIdx }

// Node dereferences an index.
func (t *Trie) Node(i NodeIdx) *Node { return &t.Nodes[i] }

// Build constructs a Trie from every zone in cfg: each record owner name is
// inserted label-by-label (idempotently — inserting the same path twice is
// a no-op beyond the first time), and each DNAME record additionally
// inserts its target path and records the cross-edge.
func Build(cfg *model.Config) *Trie {
	t := &Trie{Nodes: []Node{{
		Children: map[string]NodeIdx{},
		Path:     model.Root(),
	}}}

	for _, z := range cfg.AllZones() {
		for _, r := range z.Records {
			ownerIdx := t.insert(r.Owner)
			t.Nodes[ownerIdx].IsRecordOwner = true

			if r.Type == dns.TypeDNAME && r.Data.Kind == model.RDataName {
				targetIdx := t.insert(r.Data.Name)
				t.Nodes[ownerIdx].DNAMETarget = &targetIdx
			}
		}
	}

	return t
}

// insert walks/creates the path for name and returns its node index. Safe
// to call repeatedly with the same name (idempotent).
func (t *Trie) insert(name model.Name) NodeIdx {
	cur := rootIdx
	path := model.Root()
	for _, lbl := range name.Labels {
		key := lbl.String()
		if child, ok := t.Nodes[cur].Children[key]; ok {
			cur = child
			path = path.Append(lbl)
			continue
		}

		path = path.Append(lbl)
		newNode := Node{
			Label:    lbl,
			Children: map[string]NodeIdx{},
			Path:     path,
		}
		t.Nodes = append(t.Nodes, newNode)
		newIdx := NodeIdx(len(t.Nodes) - 1)
		t.Nodes[cur].Children[key] = newIdx
		cur = newIdx
	}
	return cur
}

// SortedChildren returns a node's children sorted by label text, for
// deterministic DFS traversal during EC generation.
func (t *Trie) SortedChildren(idx NodeIdx) []NodeIdx {
	children := t.Nodes[idx].Children
	keys := make([]string, 0, len(children))
	for k := range children {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]NodeIdx, len(keys))
	for i, k := range keys {
		out[i] = children[k]
	}
	return out
}

// SiblingLabels returns the literal (non-wildcard) labels of idx's
// children, used to build the Excluded set for that node's alpha child.
func (t *Trie) SiblingLabels(idx NodeIdx) []string {
	var out []string
	for key := range t.Nodes[idx].Children {
		if key == "*" {
			continue
		}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
