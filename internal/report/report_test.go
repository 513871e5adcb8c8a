package report

import (
	"bytes"
	"testing"

	"github.com/classmarkets/dnsverify/internal/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateDedupsAndSorts(t *testing.T) {
	vs := []property.Violation{
		{Property: "Rewrites", Subject: "b", Reason: "r1"},
		{Property: "Rewrites", Subject: "b", Reason: "r1"},
		{Property: "LameDelegation", Subject: "a", Reason: "r2"},
	}
	r := Aggregate(vs, 3, 10, []string{"LameDelegation", "Rewrites"})
	require.Len(t, r.Violations, 2)
	assert.Equal(t, "LameDelegation", r.Violations[0].Property)
	assert.Equal(t, "Rewrites", r.Violations[1].Property)
	assert.Equal(t, 3, r.ZonesParsed)
	assert.Equal(t, 10, r.ECCount)
}

func TestHumanizeCamelBoundary(t *testing.T) {
	assert.Equal(t, "Delegation Consistency", humanize("DelegationConsistency"))
	assert.Equal(t, "Rewrites", humanize("Rewrites"))
}

func TestWriteIncludesFailBlockAndSummary(t *testing.T) {
	r := Report{
		ZonesParsed: 2,
		ECCount:     5,
		Violations: []property.Violation{
			{Property: "LameDelegation", Subject: "www.example.com. A", Reason: "server ns2. is not authoritative"},
		},
		AllProperties: []string{"LameDelegation", "ResponseReturned"},
	}

	var buf bytes.Buffer
	Write(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "[FAIL] Property Violation: Lame Delegation")
	assert.Contains(t, out, "Query: www.example.com. A")
	assert.Contains(t, out, "Reason: server ns2. is not authoritative")
	assert.Contains(t, out, "--- Verification Summary ---")
	assert.Contains(t, out, "Total Zones Parsed: 2")
	assert.Contains(t, out, "Equivalence Classes Generated: 5")
	assert.Contains(t, out, "1. Lame Delegation")
	assert.Contains(t, out, "[FAIL]")
	assert.Contains(t, out, "2. Response Returned")
	assert.Contains(t, out, "[PASS]")
}

func TestWriteAllPassWhenNoViolations(t *testing.T) {
	r := Report{AllProperties: []string{"Rewrites"}}
	var buf bytes.Buffer
	Write(&buf, r)
	out := buf.String()
	assert.NotContains(t, out, "[FAIL] Property Violation")
	assert.Contains(t, out, "Rewrites")
	assert.Contains(t, out, "0 issues found [PASS]")
}
