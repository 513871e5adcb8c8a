// Package ec enumerates equivalence classes (component C): a finite cover
// of the infinite query space, built by a depth-first walk of the label
// trie that pairs every concrete and alpha domain with the supported query
// types.
package ec

import (
	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/classmarkets/dnsverify/internal/trie"
	"github.com/miekg/dns"
)

// MaxDNSLength bounds the label-count of any EC domain; DNAME traversal
// branches longer than this are abandoned (spec §9's fixed EC length bound).
const MaxDNSLength = 20

// DefaultTypes is the query-type set an EC generation pairs every domain
// with, unless jobs restrict it to a tighter set.
var DefaultTypes = []model.RRType{
	dns.TypeA, dns.TypeAAAA, dns.TypeNS, dns.TypeMX, dns.TypeTXT, dns.TypeCNAME, dns.TypeSOA, dns.TypeDNAME,
}

// EC is one equivalence class: a (possibly symbolic) domain paired with the
// set of query types every concrete query in the class shares a resolution
// trace for.
type EC struct {
	ID     int
	Domain model.Name
	Types  []model.RRType
}

// Generate enumerates the ordered list of equivalence classes for t, cross
// producted with types. Order is deterministic: DFS over sorted labels,
// concrete EC before its alpha sibling at the same node, types in the order
// given.
func Generate(t *trie.Trie, types []model.RRType) []EC {
	g := &generator{trie: t, types: types}
	g.walk(t.Root(), model.Root(), map[trie.NodeIdx]int{})
	return g.out
}

type generator struct {
	trie *trie.Trie
	types []model.RRType
	out  []EC
}

// walk performs the DFS from spec §4.C, with a type-2 loop guard (same
// node revisited at the same path length within this branch) and the
// MaxDNSLength hard bound. history is copied at each branch point so
// sibling branches don't interfere with each other's loop detection.
func (g *generator) walk(idx trie.NodeIdx, path model.Name, history map[trie.NodeIdx]int) {
	if seenLen, ok := history[idx]; ok && seenLen == path.Depth() {
		return
	}
	if path.Depth() > MaxDNSLength {
		return
	}

	history = copyHistory(history)
	history[idx] = path.Depth()

	g.emit(path)

	siblingLabels := g.trie.SiblingLabels(idx)
	alphaPath := path.Append(model.Alpha(siblingLabels))
	if alphaPath.Depth() <= MaxDNSLength {
		g.emit(alphaPath)
	}

	for _, childIdx := range g.trie.SortedChildren(idx) {
		child := g.trie.Node(childIdx)
		g.walk(childIdx, path.Append(child.Label), history)
	}

	if dnameIdx := g.trie.Node(idx).DNAMETarget; dnameIdx != nil {
		// DNAME traversal preserves the path prefix built so far; we
		// continue descending the target subtree under the *same*
		// query-name prefix.
		g.walk(*dnameIdx, path, history)
	}
}

func (g *generator) emit(domain model.Name) {
	for _, t := range g.types {
		g.out = append(g.out, EC{
			ID:     len(g.out) + 1,
			Domain: domain,
			Types:  []model.RRType{t},
		})
	}
}

func copyHistory(h map[trie.NodeIdx]int) map[trie.NodeIdx]int {
	cp := make(map[trie.NodeIdx]int, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp
}
