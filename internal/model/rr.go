package model

import (
	"net"

	"github.com/miekg/dns"
)

// RR types and classes reuse the numeric constants from github.com/miekg/dns
// (dns.TypeA, dns.ClassINET, ...) rather than a parallel enum, so that the
// zone-file reader and the rest of the pipeline never need to translate
// between two type systems.
type (
	RRType  = uint16
	RClass  = uint16
)

// RDataKind tags the variant held by an RData value.
type RDataKind int

const (
	RDataAddr RDataKind = iota
	RDataName
	RDataSoa
	RDataMx
	RDataTxt
	RDataRaw
)

// SoaData holds the fields of an SOA record relevant to verification.
type SoaData struct {
	MName   Name
	RName   Name
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minttl  uint32
}

// MxData holds the fields of an MX record.
type MxData struct {
	Pref uint16
	Name Name
}

// RData is a tagged union over the record-data shapes the verifier
// understands. Exactly one field is meaningful, selected by Kind.
type RData struct {
	Kind RDataKind
	Addr net.IP
	Name Name
	Soa  SoaData
	Mx   MxData
	Txt  []byte
	Raw  []byte
}

// Value renders the rdata the way a human-readable report or a
// ResponseValue property would compare it against configured values.
func (d RData) Value() string {
	switch d.Kind {
	case RDataAddr:
		return d.Addr.String()
	case RDataName:
		return d.Name.String()
	case RDataSoa:
		return d.Soa.MName.String()
	case RDataMx:
		return d.Mx.Name.String()
	case RDataTxt:
		return string(d.Txt)
	default:
		return string(d.Raw)
	}
}

// RR is a single resource record.
type RR struct {
	Owner Name
	Type  RRType
	Class RClass
	TTL   uint32
	Data  RData
}

// IsType is a small readability helper used throughout the lookup and
// trie-building code.
func (r RR) IsType(t RRType) bool { return r.Type == t }

// NewNameRR builds an RR whose rdata is a single domain name (NS, CNAME,
// DNAME, PTR).
func NewNameRR(owner Name, t RRType, ttl uint32, target Name) RR {
	return RR{Owner: owner, Type: t, Class: dns.ClassINET, TTL: ttl, Data: RData{Kind: RDataName, Name: target}}
}

// NewAddrRR builds an A/AAAA record.
func NewAddrRR(owner Name, t RRType, ttl uint32, ip net.IP) RR {
	return RR{Owner: owner, Type: t, Class: dns.ClassINET, TTL: ttl, Data: RData{Kind: RDataAddr, Addr: ip}}
}

// NewSoaRR builds an SOA record.
func NewSoaRR(owner Name, ttl uint32, soa SoaData) RR {
	return RR{Owner: owner, Type: dns.TypeSOA, Class: dns.ClassINET, TTL: ttl, Data: RData{Kind: RDataSoa, Soa: soa}}
}
