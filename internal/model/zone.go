package model

import (
	"fmt"
	"sort"

	"github.com/miekg/dns"
)

// ServerId identifies a nameserver by its domain name.
type ServerId string

// Zone is an immutable, in-memory slice of the DNS namespace under a single
// administrative authority.
type Zone struct {
	Origin  Name
	Server  ServerId
	Records []RR

	// Incomplete is set when the zone file carried no SOA at its origin
	// (the NoSOA warning condition from §7); the zone is still registered
	// and usable, just flagged.
	Incomplete bool
}

// RRSet returns the records owned by `owner` with type `t`.
func (z *Zone) RRSet(owner Name, t RRType) []RR {
	var out []RR
	for _, r := range z.Records {
		if r.Type == t && r.Owner.Equal(owner) {
			out = append(out, r)
		}
	}
	return out
}

// OwnedTypes returns the set of RR types owned at `owner` in this zone.
func (z *Zone) OwnedTypes(owner Name) map[RRType]bool {
	out := map[RRType]bool{}
	for _, r := range z.Records {
		if r.Owner.Equal(owner) {
			out[r.Type] = true
		}
	}
	return out
}

// IsOwned reports whether any record (of any type) is owned at `name`.
func (z *Zone) IsOwned(name Name) bool {
	for _, r := range z.Records {
		if r.Owner.Equal(name) {
			return true
		}
	}
	return false
}

// SOA returns the zone's apex SOA record, if any.
func (z *Zone) SOA() (RR, bool) {
	for _, r := range z.Records {
		if r.Type == dns.TypeSOA && r.Owner.Equal(z.Origin) {
			return r, true
		}
	}
	return RR{}, false
}

// Config is the formal configuration C = <S, Theta, Gamma>: the universe of
// servers, the root (entry) servers, and the mapping from server to the
// zones it hosts.
type Config struct {
	Servers []ServerId
	Roots   []ServerId
	Zones   map[ServerId][]*Zone
}

// AllZones returns every zone hosted anywhere in the configuration, in a
// deterministic order (by server, then origin).
func (c *Config) AllZones() []*Zone {
	var out []*Zone
	servers := append([]ServerId(nil), c.Servers...)
	sort.Slice(servers, func(i, j int) bool { return servers[i] < servers[j] })
	for _, s := range servers {
		zones := append([]*Zone(nil), c.Zones[s]...)
		sort.Slice(zones, func(i, j int) bool { return zones[i].Origin.String() < zones[j].Origin.String() })
		out = append(out, zones...)
	}
	return out
}

// LookupZone returns the zone hosted by `server` whose origin is the
// longest suffix-match ancestor-or-equal of `query`. Returns false if the
// server is not authoritative for any suffix of query.
func (c *Config) LookupZone(server ServerId, query Name) (*Zone, bool) {
	var best *Zone
	bestDepth := -1
	for _, z := range c.Zones[server] {
		if z.Origin.IsAncestorOrEqual(query) && z.Origin.Depth() > bestDepth {
			best = z
			bestDepth = z.Origin.Depth()
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// AddressIndex returns owner name -> {A,AAAA} records hosted by `server`,
// across all of its zones, used to synthesize glue for in-bailiwick NS
// targets when building a Ref outcome.
func (c *Config) AddressIndex(server ServerId) map[string][]RR {
	idx := map[string][]RR{}
	for _, z := range c.Zones[server] {
		for _, r := range z.Records {
			if r.Type == dns.TypeA || r.Type == dns.TypeAAAA {
				key := r.Owner.String()
				idx[key] = append(idx[key], r)
			}
		}
	}
	return idx
}

// String is used by diagnostics/tests; not part of the verification output
// format.
func (z *Zone) String() string {
	return fmt.Sprintf("zone{origin=%s server=%s records=%d}", z.Origin, z.Server, len(z.Records))
}
