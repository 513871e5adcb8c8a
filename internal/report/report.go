// Package report aggregates property violations into a Report and renders
// the stdout format, split the way the teacher splits Trace (pure
// accumulation) from Trace.Dump (formatting): Aggregate is pure and
// testable, Write is the formatting side-effect.
package report

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/classmarkets/dnsverify/internal/property"
)

// Report is the aggregated, dedup'd, sorted result of a verification run.
type Report struct {
	ZonesParsed int
	ECCount     int
	Violations  []property.Violation

	// AllProperties lists every property that was checked, in the order it
	// should appear in the summary, regardless of whether it produced any
	// violations.
	AllProperties []string
}

// Aggregate groups and sorts raw violations into a Report. Pure: takes no
// I/O, safe to unit test directly.
func Aggregate(violations []property.Violation, zonesParsed, ecCount int, allProperties []string) Report {
	vs := append([]property.Violation(nil), violations...)
	vs = property.Dedup(vs)
	property.Sort(vs)

	return Report{
		ZonesParsed:   zonesParsed,
		ECCount:       ecCount,
		Violations:    vs,
		AllProperties: allProperties,
	}
}

// Write renders r in the stdout format from spec: one "[FAIL] Property
// Violation: ..." block per violation, followed by a "--- Verification
// Summary ---" section.
func Write(w io.Writer, r Report) {
	for _, v := range r.Violations {
		fmt.Fprintf(w, "[FAIL] Property Violation: %s\n", humanize(v.Property))
		fmt.Fprintf(w, "Query: %s\n", v.Subject)
		fmt.Fprintf(w, "Reason: %s\n", v.Reason)
		fmt.Fprintln(w)
	}

	counts := map[string]int{}
	for _, v := range r.Violations {
		counts[v.Property]++
	}

	fmt.Fprintln(w, "--- Verification Summary ---")
	fmt.Fprintf(w, "Total Zones Parsed: %d\n", r.ZonesParsed)
	fmt.Fprintf(w, "Equivalence Classes Generated: %d\n", r.ECCount)
	fmt.Fprintln(w)

	for i, name := range r.AllProperties {
		n := counts[name]
		status := "PASS"
		if n > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%d. %-28s %d issues found [%s]\n", i+1, humanize(name), n, status)
	}
}

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// humanize turns a property's Go identifier (e.g. "DelegationConsistency")
// into the human-readable name spec's summary format uses ("Delegation
// Consistency").
func humanize(name string) string {
	spaced := camelBoundary.ReplaceAllString(name, "$1 $2")
	return strings.TrimSpace(spaced)
}
