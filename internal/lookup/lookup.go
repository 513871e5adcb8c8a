// Package lookup implements the single-server symbolic answer function
// (component D): closest-encloser search, rank-based tie-breaking, and the
// exact-match / ancestor-match classification that produces a
// ServerOutcome for one (server, zone, query, type).
package lookup

import (
	"sort"

	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
)

// OutcomeKind tags the result of a single-server lookup.
type OutcomeKind int

const (
	// OutcomeAns covers both data-present and NoData answers.
	OutcomeAns OutcomeKind = iota
	// OutcomeAnsQ is a rewrite (CNAME or DNAME).
	OutcomeAnsQ
	// OutcomeRef is a referral to a sub-zone.
	OutcomeRef
	// OutcomeNX is NXDOMAIN.
	OutcomeNX
	// OutcomeRefused means the server hosts no zone suffixing the query.
	OutcomeRefused
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAns:
		return "ANS"
	case OutcomeAnsQ:
		return "ANSQ"
	case OutcomeRef:
		return "REF"
	case OutcomeNX:
		return "NX"
	case OutcomeRefused:
		return "REFUSED"
	default:
		return "?"
	}
}

// Outcome is the tagged result of Answer.
type Outcome struct {
	Kind Kind
	// Records backs Ans (possibly empty, meaning NoData), Ref (NS+glue)
	// and NX (the zone SOA).
	Records []model.RR
	// NewQuery is set for OutcomeAnsQ: the rewritten query name.
	NewQuery model.Name
	// Chosen is the literal rdata target selected when more than one
	// CNAME/DNAME was owned at the rewriting name — recorded for
	// determinism, per spec §4.D / §9.
	Chosen string
	// Wildcard reports whether this outcome was produced via wildcard
	// synthesis rather than an exact or delegated owner.
	Wildcard bool
	// Authority carries the zone SOA attached to a NoData outcome (spec
	// §4.D: "emit Ans(∅) (NoData) with zone SOA"). Kept separate from
	// Records so an empty Records still signals NoData to tagFor.
	Authority []model.RR
}

// Kind is a short alias so call sites read lookup.Outcome{Kind: lookup.Ans}.
type Kind = OutcomeKind

// Exported kind aliases for terse call sites (lookup.Ans, lookup.Ref, ...).
const (
	Ans     = OutcomeAns
	AnsQ    = OutcomeAnsQ
	Ref     = OutcomeRef
	NX      = OutcomeNX
	Refused = OutcomeRefused
)

// Answer performs the symbolic lookup described in spec §4.D: closest
// encloser, then classification by exact vs. ancestor match, producing one
// Outcome for (zone, query, qtype). The rank tie-break (zone cut beats data
// at the same owner, exact owner beats wildcard, longer suffix wins) falls
// out of the order of the checks rather than a separate comparator:
// exactMatch checks delegation, then CNAME rewrite, then data;
// ancestorMatch checks DNAME rewrite, then delegation, then wildcard.
//
// query may carry an alpha leaf label (see model.Label); alpha labels never
// match a concrete, non-wildcard owner, so they fall straight through to
// wildcard-or-NX handling, exactly like a synthetic label distinct from
// every named sibling.
func Answer(cfg *model.Config, server model.ServerId, zone *model.Zone, query model.Name, qtype model.RRType) Outcome {
	ce := closestEncloser(zone, query)

	if ce.Equal(query) && !query.IsAlphaLeaf() {
		return exactMatch(cfg, server, zone, ce, qtype)
	}

	return ancestorMatch(cfg, server, zone, ce, query, qtype)
}

// closestEncloser walks upward from query toward zone.Origin, returning the
// longest existing name at or above query. A name exists when it owns
// records itself or when some owner lies beneath it (an empty non-terminal,
// such as a.foo.com. above *.a.foo.com.). If nothing between (exclusive)
// query and Origin exists, Origin itself is returned.
//
// An alpha-leaf query can never itself be the closest encloser (an alpha
// label matches no concrete owner by construction), so the search starts
// one level up from such a query.
func closestEncloser(zone *model.Zone, query model.Name) model.Name {
	cur := query
	if query.IsAlphaLeaf() {
		parent, ok := cur.Parent()
		if !ok {
			return zone.Origin
		}
		cur = parent
	}

	exists := func(n model.Name) bool {
		for _, r := range zone.Records {
			if n.IsAncestorOrEqual(r.Owner) {
				return true
			}
		}
		return false
	}

	for {
		if exists(cur) {
			return cur
		}
		if cur.Equal(zone.Origin) {
			return zone.Origin
		}
		parent, ok := cur.Parent()
		if !ok || !zone.Origin.IsAncestorOrEqual(parent) {
			return zone.Origin
		}
		cur = parent
	}
}

// exactMatch classifies the ce == query case.
func exactMatch(cfg *model.Config, server model.ServerId, zone *model.Zone, ce model.Name, qtype model.RRType) Outcome {
	owned := zone.OwnedTypes(ce)

	if isDelegation(zone, ce, owned) {
		return referral(cfg, server, zone, ce)
	}

	if owned[dns.TypeCNAME] && qtype != dns.TypeCNAME {
		return cnameRewrite(zone, ce)
	}

	recs := zone.RRSet(ce, qtype)
	if len(recs) > 0 {
		return Outcome{Kind: Ans, Records: recs}
	}

	soaRec, _ := zone.SOA()
	var authority []model.RR
	if soaRec.Type == dns.TypeSOA {
		authority = []model.RR{soaRec}
	}
	return Outcome{Kind: Ans, Records: recs, Authority: authority}
}

// ancestorMatch classifies the ce strictly-above-query case.
func ancestorMatch(cfg *model.Config, server model.ServerId, zone *model.Zone, ce model.Name, query model.Name, qtype model.RRType) Outcome {
	owned := zone.OwnedTypes(ce)

	if owned[dns.TypeDNAME] {
		return dnameRewrite(zone, ce, query)
	}

	if isDelegation(zone, ce, owned) {
		return referral(cfg, server, zone, ce)
	}

	wildcard := ce.Append(model.Wildcard())
	if zone.IsOwned(wildcard) {
		wowned := zone.OwnedTypes(wildcard)
		if wowned[dns.TypeCNAME] && qtype != dns.TypeCNAME {
			out := cnameRewrite(zone, wildcard)
			out.Wildcard = true
			return out
		}
		recs := zone.RRSet(wildcard, qtype)
		return Outcome{Kind: Ans, Records: recs, Wildcard: true}
	}

	soaRec, _ := zone.SOA()
	var soa []model.RR
	if soaRec.Type == dns.TypeSOA {
		soa = []model.RR{soaRec}
	}
	return Outcome{Kind: NX, Records: soa}
}

// isDelegation reports whether `owned` (the RR types owned at `name`)
// represents a zone cut: NS present, and this isn't the zone apex carrying
// its own SOA+NS (e.g. an apex that happens to list its own NS records is
// authoritative data, not a delegation below it).
func isDelegation(zone *model.Zone, name model.Name, owned map[model.RRType]bool) bool {
	if !owned[dns.TypeNS] {
		return false
	}
	if name.Equal(zone.Origin) {
		return false
	}
	return true
}

// referral builds a Ref outcome: the NS rrset at name plus in-bailiwick
// glue A/AAAA for any NS target that is itself a descendant of name. Glue is
// drawn from cfg.AddressIndex(server), which covers every zone server
// hosts — not just the delegating zone — so glue synthesizes correctly even
// when the NS target's address records live in a sibling zone on the same
// server.
func referral(cfg *model.Config, server model.ServerId, zone *model.Zone, name model.Name) Outcome {
	ns := zone.RRSet(name, dns.TypeNS)
	sort.Slice(ns, func(i, j int) bool { return ns[i].Data.Value() < ns[j].Data.Value() })

	out := append([]model.RR(nil), ns...)
	addrs := cfg.AddressIndex(server)
	for _, nsRR := range ns {
		if nsRR.Data.Kind != model.RDataName {
			continue
		}
		target := nsRR.Data.Name
		if name.IsAncestorOrEqual(target) {
			out = append(out, addrs[target.String()]...)
		}
	}

	return Outcome{Kind: Ref, Records: out}
}

// cnameRewrite builds an AnsQ outcome from the CNAME(s) owned at name,
// picking the lexicographically smallest target when more than one is
// present (spec §9's determinism rule).
func cnameRewrite(zone *model.Zone, name model.Name) Outcome {
	cnames := zone.RRSet(name, dns.TypeCNAME)
	chosen := smallestTarget(cnames)
	return Outcome{
		Kind:     AnsQ,
		Records:  []model.RR{chosen},
		NewQuery: chosen.Data.Name,
		Chosen:   chosen.Data.Name.String(),
	}
}

// dnameRewrite builds an AnsQ outcome substituting query's ce-prefix with
// the DNAME target, picking the smallest target if more than one DNAME is
// owned at ce (same determinism rule as CNAME).
func dnameRewrite(zone *model.Zone, ce model.Name, query model.Name) Outcome {
	dnames := zone.RRSet(ce, dns.TypeDNAME)
	chosen := smallestTarget(dnames)
	newQuery := query.ReplacePrefix(ce, chosen.Data.Name)
	return Outcome{
		Kind:     AnsQ,
		Records:  []model.RR{chosen},
		NewQuery: newQuery,
		Chosen:   chosen.Data.Name.String(),
	}
}

func smallestTarget(recs []model.RR) model.RR {
	best := recs[0]
	for _, r := range recs[1:] {
		if r.Data.Name.String() < best.Data.Name.String() {
			best = r
		}
	}
	return best
}
