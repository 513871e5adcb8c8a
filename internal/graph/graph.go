// Package graph builds the per-EC interpretation graph (component E): a
// worklist-driven symbolic execution over (server, query, types) states
// that follows referrals and rewrites, deduplicating on state key so that
// referral loops and rewrite loops terminate without growing the call
// stack.
package graph

import (
	"container/list"
	"fmt"
	"sort"
	"strings"

	"github.com/classmarkets/dnsverify/internal/ec"
	"github.com/classmarkets/dnsverify/internal/lookup"
	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
)

// AnswerTag classifies a terminal or pass-through IG node the way property
// checks need to see it.
type AnswerTag int

const (
	TagAns AnswerTag = iota
	TagAnsQ
	TagRef
	TagNX
	TagNoData
	TagRefused
	TagDepthExceeded
)

func (t AnswerTag) String() string {
	switch t {
	case TagAns:
		return "Ans"
	case TagAnsQ:
		return "AnsQ"
	case TagRef:
		return "Ref"
	case TagNX:
		return "NX"
	case TagNoData:
		return "NoData"
	case TagRefused:
		return "Refused"
	case TagDepthExceeded:
		return "DepthExceeded"
	default:
		return "?"
	}
}

// EdgeKind distinguishes referral edges (same query name, different
// server) from rewrite edges (name changed by CNAME/DNAME).
type EdgeKind int

const (
	Referral EdgeKind = iota
	Rewrite
)

func (k EdgeKind) String() string {
	if k == Rewrite {
		return "Rewrite"
	}
	return "Referral"
}

// NodeKey identifies a resolution state: the server queried, the query
// name, and the set of types still pending an answer at that name.
type NodeKey struct {
	Server model.ServerId
	Name   string
	Types  string
}

func newKey(server model.ServerId, name model.Name, types []model.RRType) NodeKey {
	sorted := append([]model.RRType(nil), types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	strs := make([]string, len(sorted))
	for i, t := range sorted {
		strs[i] = fmt.Sprint(t)
	}
	return NodeKey{Server: server, Name: name.String(), Types: strings.Join(strs, ",")}
}

// Node is one state in the interpretation graph.
type Node struct {
	Key     NodeKey
	Name    model.Name
	Types   []model.RRType
	Outcome lookup.Outcome
	Tag     AnswerTag
}

// Edge connects two states.
type Edge struct {
	From NodeKey
	To   NodeKey
	Kind EdgeKind
}

// IG is the interpretation graph for a single equivalence class.
type IG struct {
	Nodes   map[NodeKey]*Node
	Edges   []Edge
	Entries []NodeKey

	// outAdj and inAdj index Edges by endpoint for property evaluation.
	outAdj map[NodeKey][]Edge
	inAdj  map[NodeKey][]Edge
}

// Out returns the edges leaving key, in insertion order.
func (g *IG) Out(key NodeKey) []Edge { return g.outAdj[key] }

// In returns the edges entering key, in insertion order.
func (g *IG) In(key NodeKey) []Edge { return g.inAdj[key] }

// Limits bounds symbolic execution, per spec §9.
type Limits struct {
	// Fuel bounds path depth (edges) within one branch; exceeding it
	// yields a DepthExceeded terminal node. Default 15.
	Fuel int
	// MaxSteps bounds total worklist pops across the whole graph build,
	// guarding against pathological fan-out even under the fuel bound.
	// Default 1000.
	MaxSteps int
	// Lookup overrides cfg.LookupZone, e.g. with a memo.ZoneLookupCache
	// shared across many EC builds against the same Config. Defaults to
	// cfg.LookupZone directly.
	Lookup func(model.ServerId, model.Name) (*model.Zone, bool)
}

// DefaultLimits returns the spec-fixed defaults (fuel 15, 1000 steps).
func DefaultLimits() Limits { return Limits{Fuel: 15, MaxSteps: 1000} }

type work struct {
	server model.ServerId
	name   model.Name
	types  []model.RRType
	depth  int
	parent *NodeKey
	kind   EdgeKind
}

// Build drives the worklist for one equivalence class over cfg, as
// described in spec §4.E.
func Build(cfg *model.Config, class ec.EC, limits Limits) *IG {
	if limits.Fuel <= 0 {
		limits.Fuel = 15
	}
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = 1000
	}
	if limits.Lookup == nil {
		limits.Lookup = cfg.LookupZone
	}

	g := &IG{
		Nodes:  map[NodeKey]*Node{},
		outAdj: map[NodeKey][]Edge{},
		inAdj:  map[NodeKey][]Edge{},
	}

	wl := list.New()
	for _, root := range cfg.Roots {
		wl.PushBack(&work{server: root, name: class.Domain, types: class.Types, depth: 0})
		g.Entries = append(g.Entries, newKey(root, class.Domain, class.Types))
	}

	steps := 0
	for wl.Len() > 0 && steps < limits.MaxSteps {
		steps++
		front := wl.Remove(wl.Front()).(*work)
		g.step(cfg, front, limits, wl)
	}

	return g
}

func (g *IG) addEdge(from, to NodeKey, kind EdgeKind) {
	e := Edge{From: from, To: to, Kind: kind}
	for _, existing := range g.outAdj[from] {
		if existing == e {
			return
		}
	}
	g.Edges = append(g.Edges, e)
	g.outAdj[from] = append(g.outAdj[from], e)
	g.inAdj[to] = append(g.inAdj[to], e)
}

func (g *IG) step(cfg *model.Config, w *work, limits Limits, wl *list.List) {
	key := newKey(w.server, w.name, w.types)

	if existing, ok := g.Nodes[key]; ok {
		if w.parent != nil {
			g.addEdge(*w.parent, existing.Key, w.kind)
		}
		return
	}

	node := &Node{Key: key, Name: w.name, Types: w.types}
	g.Nodes[key] = node
	if w.parent != nil {
		g.addEdge(*w.parent, key, w.kind)
	}

	if w.depth >= limits.Fuel {
		node.Tag = TagDepthExceeded
		return
	}

	zone, ok := limits.Lookup(w.server, w.name)
	if !ok {
		node.Tag = TagRefused
		node.Outcome = lookup.Outcome{Kind: lookup.Refused}
		return
	}

	// One outcome per distinct result across the pending types (type
	// bundling, spec §4.E): split into groups whose lookup.Answer agrees,
	// and enqueue one successor per group so the IG stays one-per-EC
	// rather than one-per-(EC,type).
	groups := bundleByOutcome(cfg, w.server, zone, w.name, w.types)

	node.Outcome = groups[0].outcome
	node.Tag = tagFor(groups[0].outcome)

	for _, grp := range groups {
		switch grp.outcome.Kind {
		case lookup.Ref:
			for _, ns := range referralServers(grp.outcome) {
				wl.PushBack(&work{
					server: ns,
					name:   w.name,
					types:  grp.types,
					depth:  w.depth + 1,
					parent: &key,
					kind:   Referral,
				})
			}
		case lookup.AnsQ:
			nextServers := rewriteServers(cfg, limits.Lookup, w.server, grp.outcome.NewQuery)
			for _, srv := range nextServers {
				wl.PushBack(&work{
					server: srv,
					name:   grp.outcome.NewQuery,
					types:  grp.types,
					depth:  w.depth + 1,
					parent: &key,
					kind:   Rewrite,
				})
			}
		}
	}
}

type outcomeGroup struct {
	outcome lookup.Outcome
	types   []model.RRType
}

// bundleByOutcome groups the pending types by identical lookup.Answer
// result so divergent per-type outcomes (e.g. a CNAME rewrite for
// non-CNAME types alongside a direct CNAME answer) split into distinct
// successor groups instead of collapsing into one.
func bundleByOutcome(cfg *model.Config, server model.ServerId, zone *model.Zone, name model.Name, types []model.RRType) []outcomeGroup {
	var groups []outcomeGroup
	for _, t := range types {
		out := lookup.Answer(cfg, server, zone, name, t)
		matched := false
		for i := range groups {
			if sameOutcome(groups[i].outcome, out) {
				groups[i].types = append(groups[i].types, t)
				matched = true
				break
			}
		}
		if !matched {
			groups = append(groups, outcomeGroup{outcome: out, types: []model.RRType{t}})
		}
	}
	return groups
}

// sameOutcome decides whether two per-type lookup results belong in the
// same bundled successor group. Ref/Ans outcomes additionally require equal
// record sets — two types that both land on Ans but carry different rdata
// (e.g. A vs NS at the same owner) must NOT merge, or the node's recorded
// answer would silently pick one type's records for both.
func sameOutcome(a, b lookup.Outcome) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case lookup.AnsQ:
		return a.NewQuery.Equal(b.NewQuery)
	case lookup.Ref, lookup.Ans:
		return recordSetEqual(a.Records, b.Records)
	default:
		return true
	}
}

func recordSetEqual(a, b []model.RR) bool {
	if len(a) != len(b) {
		return false
	}
	as := renderSet(a)
	bs := renderSet(b)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func renderSet(rs []model.RR) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = fmt.Sprintf("%s/%d/%s", r.Owner, r.Type, r.Data.Value())
	}
	return out
}

func tagFor(out lookup.Outcome) AnswerTag {
	switch out.Kind {
	case lookup.Ans:
		if len(out.Records) == 0 {
			return TagNoData
		}
		return TagAns
	case lookup.AnsQ:
		return TagAnsQ
	case lookup.Ref:
		return TagRef
	case lookup.NX:
		return TagNX
	case lookup.Refused:
		return TagRefused
	default:
		return TagNX
	}
}

func referralServers(out lookup.Outcome) []model.ServerId {
	var out2 []model.ServerId
	for _, r := range out.Records {
		if r.Type != dns.TypeNS {
			continue
		}
		if r.Data.Kind == model.RDataName {
			out2 = append(out2, model.ServerId(r.Data.Name.String()))
		}
	}
	return out2
}

// rewriteServers implements spec §4.E step 5: restart at the configured
// roots unless the current server is itself authoritative for a suffix of
// the rewritten name, in which case stay local to preserve bailiwick
// locality.
func rewriteServers(cfg *model.Config, lookupZone func(model.ServerId, model.Name) (*model.Zone, bool), current model.ServerId, newQuery model.Name) []model.ServerId {
	if _, ok := lookupZone(current, newQuery); ok {
		return []model.ServerId{current}
	}
	return cfg.Roots
}
