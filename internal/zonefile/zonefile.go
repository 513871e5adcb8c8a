// Package zonefile parses BIND master-file format zone text into model.RR
// values (component 0'). Pre-processing (comment stripping, paren-spanned
// multi-line records, blank-owner-name inheritance, $TTL/$ORIGIN handling)
// is a tolerant line assembler; per-record parsing defers to
// github.com/miekg/dns's own zone parser (a dns.NewZoneParser per assembled
// line, seeded with the active $ORIGIN), rather than reimplementing RDATA
// grammar.
//
// Parsing is tolerant by design (spec §7's ZoneParseError policy): a
// malformed line is skipped with a warning, not fatal.
package zonefile

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/miekg/dns"
)

// discard is used whenever Parse is called with a nil logger, so callers
// that don't care about warnings don't need to construct one.
var discard = log.New(io.Discard, "", 0)

// ParseResult is the outcome of parsing one zone file: its records plus
// whether a SOA was found at the origin (feeds the NoSOA warning, spec §7).
type ParseResult struct {
	Records []model.RR
	HasSOA  bool
}

// Parse reads the BIND zone-file text in src, rooted at origin (used to
// complete relative names and as the $ORIGIN default), and returns its
// records. Malformed lines are logged to warn and skipped; Parse itself
// never fails.
func Parse(src string, origin model.Name, warn *log.Logger) ParseResult {
	if warn == nil {
		warn = discard
	}
	lines := assemble(src)

	activeOrigin := origin.String()
	defaultTTL := uint32(3600)
	lastOwner := ""

	var out ParseResult

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "$ORIGIN") {
			fields := strings.Fields(line)
			if len(fields) > 1 {
				activeOrigin = absolute(fields[1], activeOrigin)
			}
			continue
		}
		if strings.HasPrefix(upper, "$TTL") {
			fields := strings.Fields(line)
			if len(fields) > 1 {
				if ttl, err := parseTTL(fields[1]); err == nil {
					defaultTTL = ttl
				}
			}
			continue
		}

		owner, rest, ok := splitOwner(line)
		if !ok {
			continue
		}
		if owner == "@" {
			owner = activeOrigin
		}
		if owner == "" {
			owner = lastOwner
		} else {
			lastOwner = owner
		}
		if owner == "" {
			warn.Printf("zonefile: skipping line with no owner name: %q", raw)
			continue
		}

		// rest may carry its own TTL and/or class ahead of the type; only
		// the ones it lacks are filled in from $TTL and IN.
		ttlTok, classTok := fmt.Sprint(defaultTTL), "IN"
		fields := strings.Fields(rest)
		for i := 0; i < 2 && len(fields) > 0; i++ {
			if _, err := parseTTL(fields[0]); err == nil {
				ttlTok, fields = fields[0], fields[1:]
			} else if u := strings.ToUpper(fields[0]); u == "IN" || u == "CH" || u == "HS" {
				classTok, fields = u, fields[1:]
			}
		}
		fullLine := fmt.Sprintf("%s %s %s %s", owner, ttlTok, classTok, strings.Join(fields, " "))

		// A per-line ZoneParser (rather than dns.NewRR) so relative owner
		// and rdata names are expanded against the zone's active $ORIGIN,
		// the same expansion dns.NewZoneParser does for the teacher's own
		// whole-file parsing in server_test.go.
		zp := dns.NewZoneParser(strings.NewReader(fullLine+"\n"), activeOrigin, "")
		zp.SetIncludeAllowed(false)
		rr, ok := zp.Next()
		if !ok || zp.Err() != nil {
			warn.Printf("zonefile: skipping unparsable line %q: %v", raw, zp.Err())
			continue
		}

		mrr, err := fromDNS(rr)
		if err != nil {
			warn.Printf("zonefile: skipping unsupported record %q: %v", raw, err)
			continue
		}

		out.Records = append(out.Records, mrr)
		if mrr.Type == dns.TypeSOA && mrr.Owner.Equal(origin) {
			out.HasSOA = true
		}
	}

	return out
}

// assemble strips comments and joins parenthesis-spanned records onto a
// single logical line, the way original_source's tolerant pre-processor
// does before handing a line to a record parser.
func assemble(src string) []string {
	var out []string
	var buf []string
	balance := 0

	for _, line := range strings.Split(src, "\n") {
		if i := strings.Index(line, ";"); i >= 0 {
			line = line[:i]
		}
		if strings.TrimSpace(line) == "" && balance == 0 {
			continue
		}

		opens := strings.Count(line, "(")
		closes := strings.Count(line, ")")

		if balance == 0 && opens == 0 {
			out = append(out, line)
			continue
		}

		buf = append(buf, line)
		balance += opens - closes

		if balance <= 0 {
			joined := strings.NewReplacer("(", " ", ")", " ").Replace(strings.Join(buf, " "))
			out = append(out, joined)
			buf = nil
			balance = 0
		}
	}

	return out
}

// splitOwner separates a line's leading owner-name field (possibly absent,
// meaning "inherit the previous owner") from the remainder, recognizing TTL,
// class and type tokens so a bare "IN A 1.2.3.4" line is correctly read as
// having no owner field.
func splitOwner(line string) (owner string, rest string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", "", false
	}

	if isRecordToken(fields[0]) {
		return "", line, true
	}

	return fields[0], strings.Join(fields[1:], " "), true
}

func isRecordToken(tok string) bool {
	u := strings.ToUpper(tok)
	switch u {
	case "IN", "CH", "HS":
		return true
	}
	if _, err := parseTTL(tok); err == nil {
		return true
	}
	switch u {
	case "A", "AAAA", "NS", "CNAME", "DNAME", "SOA", "MX", "TXT", "PTR", "SRV":
		return true
	}
	return false
}

func parseTTL(s string) (uint32, error) {
	var v uint32
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func absolute(name, origin string) string {
	if name == "@" {
		return origin
	}
	if strings.HasSuffix(name, ".") {
		return name
	}
	if origin == "." {
		return name + "."
	}
	return name + "." + origin
}

// fromDNS converts a parsed dns.RR into the verifier's tagged RData model,
// per spec's required type set (A, AAAA, NS, CNAME, DNAME, SOA, MX, TXT) plus
// PTR/SRV stored as name/raw rdata respectively.
func fromDNS(rr dns.RR) (model.RR, error) {
	hdr := rr.Header()
	owner := model.NewName(hdr.Name)
	base := model.RR{Owner: owner, Type: hdr.Rrtype, Class: hdr.Class, TTL: hdr.Ttl}

	switch x := rr.(type) {
	case *dns.A:
		base.Data = model.RData{Kind: model.RDataAddr, Addr: x.A}
	case *dns.AAAA:
		base.Data = model.RData{Kind: model.RDataAddr, Addr: x.AAAA}
	case *dns.NS:
		base.Data = model.RData{Kind: model.RDataName, Name: model.NewName(x.Ns)}
	case *dns.CNAME:
		base.Data = model.RData{Kind: model.RDataName, Name: model.NewName(x.Target)}
	case *dns.DNAME:
		base.Data = model.RData{Kind: model.RDataName, Name: model.NewName(x.Target)}
	case *dns.PTR:
		base.Data = model.RData{Kind: model.RDataName, Name: model.NewName(x.Ptr)}
	case *dns.SOA:
		base.Data = model.RData{Kind: model.RDataSoa, Soa: model.SoaData{
			MName:   model.NewName(x.Ns),
			RName:   model.NewName(x.Mbox),
			Serial:  x.Serial,
			Refresh: x.Refresh,
			Retry:   x.Retry,
			Expire:  x.Expire,
			Minttl:  x.Minttl,
		}}
	case *dns.MX:
		base.Data = model.RData{Kind: model.RDataMx, Mx: model.MxData{Pref: x.Preference, Name: model.NewName(x.Mx)}}
	case *dns.TXT:
		base.Data = model.RData{Kind: model.RDataTxt, Txt: []byte(strings.Join(x.Txt, ""))}
	case *dns.SRV:
		base.Data = model.RData{Kind: model.RDataRaw, Raw: []byte(fmt.Sprintf("%d %d %d %s", x.Priority, x.Weight, x.Port, x.Target))}
	default:
		return model.RR{}, fmt.Errorf("unsupported record type %s", dns.TypeToString[hdr.Rrtype])
	}

	return base, nil
}
