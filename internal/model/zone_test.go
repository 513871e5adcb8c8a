package model

import (
	"net"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleZone() *Zone {
	origin := NewName("example.com.")
	return &Zone{
		Origin: origin,
		Server: "ns1.example.com.",
		Records: []RR{
			NewSoaRR(origin, 3600, SoaData{MName: NewName("ns1.example.com."), RName: NewName("hostmaster.example.com.")}),
			NewNameRR(origin, dns.TypeNS, 3600, NewName("ns1.example.com.")),
			NewAddrRR(origin, dns.TypeA, 3600, net.ParseIP("1.2.3.4")),
			NewAddrRR(NewName("ns1.example.com."), dns.TypeA, 3600, net.ParseIP("5.6.7.8")),
		},
	}
}

func TestZoneRRSet(t *testing.T) {
	z := exampleZone()
	a := z.RRSet(z.Origin, dns.TypeA)
	require.Len(t, a, 1)
	assert.Equal(t, "1.2.3.4", a[0].Data.Value())

	none := z.RRSet(z.Origin, dns.TypeMX)
	assert.Empty(t, none)
}

func TestZoneOwnedTypesAndIsOwned(t *testing.T) {
	z := exampleZone()
	owned := z.OwnedTypes(z.Origin)
	assert.True(t, owned[dns.TypeSOA])
	assert.True(t, owned[dns.TypeNS])
	assert.True(t, owned[dns.TypeA])
	assert.False(t, owned[dns.TypeMX])

	assert.True(t, z.IsOwned(z.Origin))
	assert.False(t, z.IsOwned(NewName("nope.example.com.")))
}

func TestZoneSOA(t *testing.T) {
	z := exampleZone()
	soa, ok := z.SOA()
	require.True(t, ok)
	assert.Equal(t, dns.TypeSOA, soa.Type)
}

func TestConfigLookupZoneLongestSuffix(t *testing.T) {
	parent := &Zone{Origin: NewName("example.com."), Server: "ns1.example.com."}
	child := &Zone{Origin: NewName("child.example.com."), Server: "ns1.example.com."}

	cfg := &Config{
		Zones: map[ServerId][]*Zone{
			"ns1.example.com.": {parent, child},
		},
	}

	z, ok := cfg.LookupZone("ns1.example.com.", NewName("www.child.example.com."))
	require.True(t, ok)
	assert.Equal(t, "child.example.com.", z.Origin.String())

	z, ok = cfg.LookupZone("ns1.example.com.", NewName("www.example.com."))
	require.True(t, ok)
	assert.Equal(t, "example.com.", z.Origin.String())

	_, ok = cfg.LookupZone("ns2.example.com.", NewName("www.example.com."))
	assert.False(t, ok)
}

func TestConfigAllZonesDeterministicOrder(t *testing.T) {
	zB := &Zone{Origin: NewName("b.example.com."), Server: "ns1."}
	zA := &Zone{Origin: NewName("a.example.com."), Server: "ns1."}

	cfg := &Config{
		Servers: []ServerId{"ns1."},
		Zones:   map[ServerId][]*Zone{"ns1.": {zB, zA}},
	}

	all := cfg.AllZones()
	require.Len(t, all, 2)
	assert.Equal(t, "a.example.com.", all[0].Origin.String())
	assert.Equal(t, "b.example.com.", all[1].Origin.String())
}
