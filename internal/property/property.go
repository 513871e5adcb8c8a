// Package property implements the declarative property checker (component
// F): a fixed catalog of checks, each evaluated either per-EC over an
// interpretation graph, or once, structurally, over the whole configuration.
package property

import (
	"fmt"
	"sort"

	"github.com/classmarkets/dnsverify/internal/ec"
	"github.com/classmarkets/dnsverify/internal/graph"
	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
)

const nsType = dns.TypeNS

// Violation is one property failure, grounded on original_source's
// ViolationRecord shape (type/details/query) but carrying a distinct
// subject string per occurrence so the report can dedupe on the full
// (property, subject, reason) tuple per spec §4.F/§6.
type Violation struct {
	Property string
	Subject  string
	Reason   string
}

func (v Violation) key() string { return v.Property + "\x00" + v.Subject + "\x00" + v.Reason }

// Sort orders violations lexicographically by (property, subject, reason),
// the ordering guarantee from spec §5.
func Sort(vs []Violation) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Property != vs[j].Property {
			return vs[i].Property < vs[j].Property
		}
		if vs[i].Subject != vs[j].Subject {
			return vs[i].Subject < vs[j].Subject
		}
		return vs[i].Reason < vs[j].Reason
	})
}

// Dedup removes exact (property, subject, reason) duplicates, preserving
// first occurrence order.
func Dedup(vs []Violation) []Violation {
	seen := map[string]bool{}
	out := make([]Violation, 0, len(vs))
	for _, v := range vs {
		k := v.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, v)
	}
	return out
}

// ECProperty checks a single equivalence class's interpretation graph.
type ECProperty interface {
	Name() string
	CheckEC(g *graph.IG, class ec.EC) []Violation
}

// StructuralProperty checks the configuration once, independent of any EC.
type StructuralProperty interface {
	Name() string
	CheckConfig(cfg *model.Config) []Violation
}

func subject(class ec.EC) string {
	return fmt.Sprintf("%s %s", class.Domain.String(), typesString(class.Types))
}

func typesString(types []model.RRType) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(t)
	}
	return out
}

// terminals returns the keys of every node in g with no outgoing edges.
func terminals(g *graph.IG) []graph.NodeKey {
	var out []graph.NodeKey
	keys := make([]graph.NodeKey, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	for _, k := range keys {
		if len(g.Out(k)) == 0 {
			out = append(out, k)
		}
	}
	return out
}

func keyLess(a, b graph.NodeKey) bool {
	if a.Server != b.Server {
		return a.Server < b.Server
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Types < b.Types
}

// ---- ResponseValue ----------------------------------------------------

// ResponseValue requires that every terminal Ans node answering a type in
// Types carries only rdata present in Values.
type ResponseValue struct {
	Types  []model.RRType
	Values []string
}

func (ResponseValue) Name() string { return "ResponseValue" }

func (p ResponseValue) CheckEC(g *graph.IG, class ec.EC) []Violation {
	wantType := map[model.RRType]bool{}
	for _, t := range p.Types {
		wantType[t] = true
	}
	allowed := map[string]bool{}
	for _, v := range p.Values {
		allowed[v] = true
	}

	var out []Violation
	for _, k := range terminals(g) {
		node := g.Nodes[k]
		if node.Tag != graph.TagAns {
			continue
		}
		for _, r := range node.Outcome.Records {
			if !wantType[r.Type] {
				continue
			}
			v := r.Data.Value()
			if !allowed[v] {
				out = append(out, Violation{
					Property: p.Name(),
					Subject:  subject(class),
					Reason:   fmt.Sprintf("server %s returned %s for %s, not in allowed value set", k.Server, v, node.Name),
				})
			}
		}
	}
	return out
}

// ---- Rewrites -----------------------------------------------------------

// Rewrites requires that no root-to-sink path carries more than Max edges
// tagged Rewrite.
type Rewrites struct {
	Max int
}

func (Rewrites) Name() string { return "Rewrites" }

func (p Rewrites) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var out []Violation
	seen := map[int]bool{}
	walkPaths(g, func(path []graph.Edge, sink graph.NodeKey) {
		count := 0
		for _, e := range path {
			if e.Kind == graph.Rewrite {
				count++
			}
		}
		if count > p.Max && !seen[count] {
			seen[count] = true
			out = append(out, Violation{
				Property: p.Name(),
				Subject:  subject(class),
				Reason:   fmt.Sprintf("Actual rewrites (%d) exceeded maximum allowed (%d)", count, p.Max),
			})
		}
	})
	return out
}

// ---- RewriteBlackholing --------------------------------------------------

// RewriteBlackholing requires that no root-to-sink path both carries a
// Rewrite edge and terminates in NX.
type RewriteBlackholing struct{}

func (RewriteBlackholing) Name() string { return "RewriteBlackholing" }

func (RewriteBlackholing) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var out []Violation
	found := false
	walkPaths(g, func(path []graph.Edge, sink graph.NodeKey) {
		if found {
			return
		}
		sinkNode := g.Nodes[sink]
		if sinkNode == nil || sinkNode.Tag != graph.TagNX {
			return
		}
		rewritten := false
		var lastRewriteTo graph.NodeKey
		for _, e := range path {
			if e.Kind == graph.Rewrite {
				rewritten = true
				lastRewriteTo = e.To
			}
		}
		if rewritten {
			found = true
			out = append(out, Violation{
				Property: "RewriteBlackholing",
				Subject:  subject(class),
				Reason:   fmt.Sprintf("rewrite to %s terminated in NXDOMAIN at server %s", g.Nodes[lastRewriteTo].Name, sink.Server),
			})
		}
	})
	return out
}

// ---- QueryRewrite ---------------------------------------------------------

// QueryRewrite requires that every Rewrite edge's target name descends from
// one of AllowedSuffixes.
type QueryRewrite struct {
	AllowedSuffixes []model.Name
}

func (QueryRewrite) Name() string { return "QueryRewrite" }

func (p QueryRewrite) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var out []Violation
	reported := map[string]bool{}
	for _, e := range g.Edges {
		if e.Kind != graph.Rewrite {
			continue
		}
		target := g.Nodes[e.To]
		if target == nil {
			continue
		}
		if !underAnySuffix(target.Name, p.AllowedSuffixes) {
			if reported[target.Name.String()] {
				continue
			}
			reported[target.Name.String()] = true
			out = append(out, Violation{
				Property: p.Name(),
				Subject:  subject(class),
				Reason:   fmt.Sprintf("rewrite target %s is outside the allowed suffixes", target.Name),
			})
		}
	}
	return out
}

func underAnySuffix(n model.Name, suffixes []model.Name) bool {
	for _, s := range suffixes {
		if s.IsAncestorOrEqual(n) {
			return true
		}
	}
	return false
}

// ---- NameserverContact -----------------------------------------------------

// NameserverContact requires that every node's server name descends from one
// of AllowedSuffixes.
type NameserverContact struct {
	AllowedSuffixes []model.Name
}

func (NameserverContact) Name() string { return "NameserverContact" }

func (p NameserverContact) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var out []Violation
	reported := map[model.ServerId]bool{}
	keys := sortedKeys(g)
	for _, k := range keys {
		serverName := model.NewName(string(k.Server))
		if underAnySuffix(serverName, p.AllowedSuffixes) {
			continue
		}
		if reported[k.Server] {
			continue
		}
		reported[k.Server] = true
		out = append(out, Violation{
			Property: p.Name(),
			Subject:  subject(class),
			Reason:   fmt.Sprintf("external nameserver %q", string(k.Server)),
		})
	}
	return out
}

func sortedKeys(g *graph.IG) []graph.NodeKey {
	keys := make([]graph.NodeKey, 0, len(g.Nodes))
	for k := range g.Nodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

// ---- ResponseConsistency / AnswerInconsistency ----------------------------

// ResponseConsistency requires that all terminal Ans nodes of the IG carry
// the same {type, rdata} multiset. This is also, structurally, the Go
// equivalent of original_source's Answer Inconsistency check: both compare
// sink-node answer sets for divergence, so no separate type is implemented.
type ResponseConsistency struct{}

func (ResponseConsistency) Name() string { return "ResponseConsistency" }

func (ResponseConsistency) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var first string
	var firstKey graph.NodeKey
	haveFirst := false
	var out []Violation

	for _, k := range terminals(g) {
		node := g.Nodes[k]
		if node.Tag != graph.TagAns {
			continue
		}
		sig := answerSignature(node)
		if !haveFirst {
			first = sig
			firstKey = k
			haveFirst = true
			continue
		}
		if sig != first {
			out = append(out, Violation{
				Property: "ResponseConsistency",
				Subject:  subject(class),
				Reason:   fmt.Sprintf("server %s answered %s differently from server %s", k.Server, node.Name, firstKey.Server),
			})
		}
	}
	return out
}

func answerSignature(n *graph.Node) string {
	recs := append([]model.RR(nil), n.Outcome.Records...)
	strs := make([]string, len(recs))
	for i, r := range recs {
		strs[i] = fmt.Sprintf("%d/%s", r.Type, r.Data.Value())
	}
	sort.Strings(strs)
	out := ""
	for i, s := range strs {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}

// ---- ResponseReturned ------------------------------------------------------

// ResponseReturned requires that at least one terminal node carries tag Ans
// with a non-empty record set.
type ResponseReturned struct{}

func (ResponseReturned) Name() string { return "ResponseReturned" }

func (ResponseReturned) CheckEC(g *graph.IG, class ec.EC) []Violation {
	for _, k := range terminals(g) {
		node := g.Nodes[k]
		if node.Tag == graph.TagAns && len(node.Outcome.Records) > 0 {
			return nil
		}
	}
	return []Violation{{
		Property: "ResponseReturned",
		Subject:  subject(class),
		Reason:   "no terminal node produced a non-empty answer",
	}}
}

// ---- LameDelegation --------------------------------------------------------

// LameDelegation requires that no node in the IG carries tag Refused.
type LameDelegation struct{}

func (LameDelegation) Name() string { return "LameDelegation" }

func (LameDelegation) CheckEC(g *graph.IG, class ec.EC) []Violation {
	var out []Violation
	for _, k := range sortedKeys(g) {
		node := g.Nodes[k]
		if node.Tag == graph.TagRefused {
			out = append(out, Violation{
				Property: "LameDelegation",
				Subject:  subject(class),
				Reason:   fmt.Sprintf("server %s is not authoritative for %s", k.Server, node.Name),
			})
		}
	}
	return out
}

// ---- RewriteLoop (expansion, supplemented from original_source) ----------

// RewriteLoop is original_source's _check_rewrite_loop: it flags a Rewrite
// edge that lies on a cycle of the IG (the worklist re-entered an
// already-built state, so the rewrite chain never terminates), or a Rewrite
// edge into a DepthExceeded node (a rewrite chain that ran out of fuel). At
// most one violation is reported per EC.
type RewriteLoop struct{}

func (RewriteLoop) Name() string { return "RewriteLoop" }

func (RewriteLoop) CheckEC(g *graph.IG, class ec.EC) []Violation {
	for _, e := range g.Edges {
		if e.Kind != graph.Rewrite {
			continue
		}
		target := g.Nodes[e.To]
		if target == nil {
			continue
		}
		if target.Tag == graph.TagDepthExceeded || reaches(g, e.To, e.From) {
			return []Violation{{
				Property: "RewriteLoop",
				Subject:  subject(class),
				Reason:   fmt.Sprintf("rewrite chain through %s never terminates", target.Name),
			}}
		}
	}
	return nil
}

// reaches reports whether goal is reachable from start (start included), so
// that reaches(g, e.To, e.From) holds exactly when edge e closes a cycle.
func reaches(g *graph.IG, start, goal graph.NodeKey) bool {
	visited := map[graph.NodeKey]bool{}
	stack := []graph.NodeKey{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == goal {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, e := range g.Out(n) {
			stack = append(stack, e.To)
		}
	}
	return false
}

// ---- DelegationConsistency (structural) ------------------------------------

// DelegationConsistency runs once over the whole configuration (spec §9's
// Open-Question resolution: a single structural pass rather than once per
// EC): for every zone whose origin has a parent zone elsewhere in the
// configuration, the NS set delegated by the parent must equal the NS set
// served by the child.
type DelegationConsistency struct{}

func (DelegationConsistency) Name() string { return "DelegationConsistency" }

func (DelegationConsistency) CheckConfig(cfg *model.Config) []Violation {
	var out []Violation
	zones := cfg.AllZones()

	for _, child := range zones {
		parent := findParentZone(cfg, zones, child)
		if parent == nil {
			continue
		}
		parentNS := renderNS(parent.RRSet(child.Origin, nsType))
		childNS := renderNS(child.RRSet(child.Origin, nsType))
		if !stringSetEqual(parentNS, childNS) {
			out = append(out, Violation{
				Property: "DelegationConsistency",
				Subject:  child.Origin.String(),
				Reason: fmt.Sprintf("NS set at %s in parent zone %s (%v) disagrees with NS set served by %s (%v)",
					child.Origin, parent.Origin, parentNS, child.Server, childNS),
			})
		}
	}
	return out
}

// findParentZone returns the zone (other than z itself) whose origin is the
// longest strict ancestor of z.Origin across the whole configuration.
func findParentZone(cfg *model.Config, zones []*model.Zone, z *model.Zone) *model.Zone {
	var best *model.Zone
	bestDepth := -1
	for _, candidate := range zones {
		if candidate == z {
			continue
		}
		if candidate.Origin.Equal(z.Origin) {
			continue
		}
		if candidate.Origin.IsAncestorOrEqual(z.Origin) && candidate.Origin.Depth() > bestDepth {
			best = candidate
			bestDepth = candidate.Origin.Depth()
		}
	}
	return best
}

func renderNS(recs []model.RR) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Data.Value())
	}
	sort.Strings(out)
	return out
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---- path enumeration ------------------------------------------------------

// walkPaths enumerates root-to-sink paths by DFS from every entry node,
// truncating at a revisited node (spec §4.F's path-enumeration /
// cycle-memoization rule) so a path never grows past the fuel-bounded graph
// itself. visit is called once per sink with the edge sequence that reached
// it.
func walkPaths(g *graph.IG, visit func(path []graph.Edge, sink graph.NodeKey)) {
	for _, entry := range g.Entries {
		walkFrom(g, entry, nil, map[graph.NodeKey]bool{entry: true}, visit)
	}
}

func walkFrom(g *graph.IG, at graph.NodeKey, path []graph.Edge, onPath map[graph.NodeKey]bool, visit func([]graph.Edge, graph.NodeKey)) {
	out := g.Out(at)
	if len(out) == 0 {
		visit(path, at)
		return
	}
	for _, e := range out {
		if onPath[e.To] {
			// Re-entering a node already on this path: truncate here,
			// treating the re-entered node as this branch's sink.
			visit(append(path, e), e.To)
			continue
		}
		onPath[e.To] = true
		walkFrom(g, e.To, append(path, e), onPath, visit)
		delete(onPath, e.To)
	}
}
