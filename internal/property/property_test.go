package property

import (
	"net"
	"testing"

	"github.com/classmarkets/dnsverify/internal/ec"
	"github.com/classmarkets/dnsverify/internal/graph"
	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAnswerGraph(t *testing.T, ip string) (*graph.IG, ec.EC) {
	t.Helper()
	origin := model.NewName("example.com.")
	www := model.NewName("www.example.com.")
	zone := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
			model.NewAddrRR(www, dns.TypeA, 3600, net.ParseIP(ip)),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.example.com."},
		Zones: map[model.ServerId][]*model.Zone{"ns1.example.com.": {zone}},
	}
	class := ec.EC{ID: 1, Domain: www, Types: []model.RRType{dns.TypeA}}
	return graph.Build(cfg, class, graph.DefaultLimits()), class
}

func TestResponseValueFlagsDisallowedValue(t *testing.T) {
	g, class := buildAnswerGraph(t, "9.9.9.9")
	p := ResponseValue{Types: []model.RRType{dns.TypeA}, Values: []string{"1.2.3.4"}}
	vs := p.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "ResponseValue", vs[0].Property)
}

func TestResponseValueAllowsMatchingValue(t *testing.T) {
	g, class := buildAnswerGraph(t, "1.2.3.4")
	p := ResponseValue{Types: []model.RRType{dns.TypeA}, Values: []string{"1.2.3.4"}}
	assert.Empty(t, p.CheckEC(g, class))
}

func TestResponseReturnedFlagsEmptyAnswer(t *testing.T) {
	origin := model.NewName("example.com.")
	zone := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.example.com."},
		Zones: map[model.ServerId][]*model.Zone{"ns1.example.com.": {zone}},
	}
	class := ec.EC{ID: 1, Domain: model.NewName("nope.example.com."), Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.DefaultLimits())

	vs := ResponseReturned{}.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "ResponseReturned", vs[0].Property)
}

func TestLameDelegationFlagsRefusedServer(t *testing.T) {
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1."},
		Zones: map[model.ServerId][]*model.Zone{},
	}
	class := ec.EC{ID: 1, Domain: model.NewName("example.com."), Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.DefaultLimits())

	vs := LameDelegation{}.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "LameDelegation", vs[0].Property)
}

func TestQueryRewriteFlagsOutOfSuffixTarget(t *testing.T) {
	origin := model.NewName("example.com.")
	src := model.NewName("www.example.com.")
	outside := model.NewName("evil.example.net.")
	zone := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
			model.NewNameRR(src, dns.TypeCNAME, 3600, outside),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.example.com."},
		Zones: map[model.ServerId][]*model.Zone{"ns1.example.com.": {zone}},
	}
	class := ec.EC{ID: 1, Domain: src, Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.DefaultLimits())

	p := QueryRewrite{AllowedSuffixes: []model.Name{origin}}
	vs := p.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Contains(t, vs[0].Reason, "outside the allowed suffixes")
}

func TestDelegationConsistencyFlagsNSMismatch(t *testing.T) {
	parentOrigin := model.NewName("example.com.")
	childOrigin := model.NewName("sub.example.com.")

	parent := &model.Zone{
		Origin: parentOrigin,
		Server: "ns1.example.com.",
		Records: []model.RR{
			model.NewNameRR(childOrigin, dns.TypeNS, 3600, model.NewName("ns1.sub.example.com.")),
		},
	}
	child := &model.Zone{
		Origin: childOrigin,
		Server: "ns1.sub.example.com.",
		Records: []model.RR{
			model.NewNameRR(childOrigin, dns.TypeNS, 3600, model.NewName("ns2.sub.example.com.")),
		},
	}
	cfg := &model.Config{
		Servers: []model.ServerId{"ns1.example.com.", "ns1.sub.example.com."},
		Zones: map[model.ServerId][]*model.Zone{
			"ns1.example.com.":     {parent},
			"ns1.sub.example.com.": {child},
		},
	}

	vs := DelegationConsistency{}.CheckConfig(cfg)
	require.Len(t, vs, 1)
	assert.Equal(t, "sub.example.com.", vs[0].Subject)
}

// buildRewriteChainGraph reproduces spec scenario 2 verbatim: a wildcard
// CNAME under a.foo.com. followed by four more CNAME hops before landing on
// an A record, queried via a name the wildcard covers.
func buildRewriteChainGraph(t *testing.T) (*graph.IG, ec.EC) {
	t.Helper()
	origin := model.NewName("foo.com.")
	star := model.NewName("*.a.foo.com.")
	b := model.NewName("b.a.foo.com.")
	c := model.NewName("c.a.foo.com.")
	d := model.NewName("d.a.foo.com.")
	e := model.NewName("e.a.foo.com.")
	f := model.NewName("f.a.foo.com.")
	query := model.NewName("x.a.foo.com.")

	zone := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.foo.com."), RName: model.NewName("hostmaster.foo.com.")}),
			model.NewNameRR(star, dns.TypeCNAME, 3600, b),
			model.NewNameRR(b, dns.TypeCNAME, 3600, c),
			model.NewNameRR(c, dns.TypeCNAME, 3600, d),
			model.NewNameRR(d, dns.TypeCNAME, 3600, e),
			model.NewNameRR(e, dns.TypeCNAME, 3600, f),
			model.NewAddrRR(f, dns.TypeA, 3600, net.ParseIP("1.1.1.1")),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.foo.com."},
		Zones: map[model.ServerId][]*model.Zone{"ns1.foo.com.": {zone}},
	}
	class := ec.EC{ID: 1, Domain: query, Types: []model.RRType{dns.TypeA}}
	return graph.Build(cfg, class, graph.DefaultLimits()), class
}

func TestRewritesFlagsChainExceedingMax(t *testing.T) {
	g, class := buildRewriteChainGraph(t)

	vs := Rewrites{Max: 4}.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "Rewrites", vs[0].Property)
	assert.Equal(t, "Actual rewrites (5) exceeded maximum allowed (4)", vs[0].Reason)
}

func TestRewritesAllowsChainWithinMax(t *testing.T) {
	g, class := buildRewriteChainGraph(t)

	assert.Empty(t, Rewrites{Max: 5}.CheckEC(g, class))
}

func TestRewriteLoopFlagsCNAMECycle(t *testing.T) {
	origin := model.NewName("loop.com.")
	a := model.NewName("a.loop.com.")
	b := model.NewName("b.loop.com.")
	zone := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.loop.com."), RName: model.NewName("hostmaster.loop.com.")}),
			model.NewNameRR(a, dns.TypeCNAME, 3600, b),
			model.NewNameRR(b, dns.TypeCNAME, 3600, a),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.loop.com."},
		Zones: map[model.ServerId][]*model.Zone{"ns1.loop.com.": {zone}},
	}
	class := ec.EC{ID: 1, Domain: a, Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.Limits{Fuel: 4, MaxSteps: 100})

	vs := RewriteLoop{}.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "RewriteLoop", vs[0].Property)
}

func TestRewriteLoopAllowsTerminatingChain(t *testing.T) {
	g, class := buildRewriteChainGraph(t)
	assert.Empty(t, RewriteLoop{}.CheckEC(g, class))
}

func TestResponseConsistencyFlagsDivergentServers(t *testing.T) {
	origin := model.NewName("example.com.")
	www := model.NewName("www.example.com.")
	zone1 := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
			model.NewAddrRR(www, dns.TypeA, 3600, net.ParseIP("1.2.3.4")),
		},
	}
	zone2 := &model.Zone{
		Origin: origin,
		Records: []model.RR{
			model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
			model.NewAddrRR(www, dns.TypeA, 3600, net.ParseIP("9.9.9.9")),
		},
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.example.com.", "ns2.example.com."},
		Zones: map[model.ServerId][]*model.Zone{
			"ns1.example.com.": {zone1},
			"ns2.example.com.": {zone2},
		},
	}
	class := ec.EC{ID: 1, Domain: www, Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.DefaultLimits())

	vs := ResponseConsistency{}.CheckEC(g, class)
	require.Len(t, vs, 1)
	assert.Equal(t, "ResponseConsistency", vs[0].Property)
}

func TestResponseConsistencyAllowsMatchingServers(t *testing.T) {
	origin := model.NewName("example.com.")
	www := model.NewName("www.example.com.")
	newZone := func() *model.Zone {
		return &model.Zone{
			Origin: origin,
			Records: []model.RR{
				model.NewSoaRR(origin, 3600, model.SoaData{MName: model.NewName("ns1.example.com."), RName: model.NewName("hostmaster.example.com.")}),
				model.NewAddrRR(www, dns.TypeA, 3600, net.ParseIP("1.2.3.4")),
			},
		}
	}
	cfg := &model.Config{
		Roots: []model.ServerId{"ns1.example.com.", "ns2.example.com."},
		Zones: map[model.ServerId][]*model.Zone{
			"ns1.example.com.": {newZone()},
			"ns2.example.com.": {newZone()},
		},
	}
	class := ec.EC{ID: 1, Domain: www, Types: []model.RRType{dns.TypeA}}
	g := graph.Build(cfg, class, graph.DefaultLimits())

	assert.Empty(t, ResponseConsistency{}.CheckEC(g, class))
}

func TestSortAndDedup(t *testing.T) {
	vs := []Violation{
		{Property: "B", Subject: "x", Reason: "r"},
		{Property: "A", Subject: "z", Reason: "r"},
		{Property: "A", Subject: "z", Reason: "r"},
	}
	vs = Dedup(vs)
	require.Len(t, vs, 2)
	Sort(vs)
	assert.Equal(t, "A", vs[0].Property)
	assert.Equal(t, "B", vs[1].Property)
}
