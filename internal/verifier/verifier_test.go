package verifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// setupDir lays out an input directory the way the CLI contract requires
// (spec §6): metadata.json and the zone files it references live under
// zone_files/, while jobs.json (written separately by callers that need it)
// stays at dir directly.
func setupDir(t *testing.T, metadata string, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "zone_files/metadata.json", metadata)
	for name, content := range files {
		writeFile(t, dir, filepath.Join("zone_files", name), content)
	}
	return dir
}

// Simple apex A lookup: every root server answers the same address.
func TestRunSimpleApexLookup(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [{"Origin": "example.com.", "FileName": "example.zone", "NameServer": "ns1.example.com."}]
	}`, map[string]string{
		"example.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
example.com. IN A 192.0.2.1
`,
	})

	r, err := Run(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.ZonesParsed)
	assert.NotZero(t, r.ECCount)
}

// Delegation inconsistency: parent NS set disagrees with child's own NS set.
func TestRunDetectsDelegationInconsistency(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [
			{"Origin": "example.com.", "FileName": "parent.zone", "NameServer": "ns1.example.com."},
			{"Origin": "sub.example.com.", "FileName": "child.zone", "NameServer": "ns1.sub.example.com."}
		]
	}`, map[string]string{
		"parent.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
sub.example.com. IN NS ns1.sub.example.com.
ns1.sub.example.com. IN A 192.0.2.2
`,
		"child.zone": `sub.example.com. IN SOA ns1.sub.example.com. hostmaster.sub.example.com. 1 3600 600 604800 3600
sub.example.com. IN NS ns2.sub.example.com.
`,
	})

	r, err := Run(dir, Options{})
	require.NoError(t, err)

	found := false
	for _, v := range r.Violations {
		if v.Property == "DelegationConsistency" {
			found = true
		}
	}
	assert.True(t, found, "mismatched parent/child NS sets must be reported")
}

// Rewrite blackholing: a CNAME points at a name with no data, i.e. NXDOMAIN.
func TestRunDetectsRewriteBlackholing(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [{"Origin": "example.com.", "FileName": "example.zone", "NameServer": "ns1.example.com."}],
		"jobs_inline": true
	}`, map[string]string{
		"example.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
www.example.com. IN CNAME ghost.example.com.
`,
	})
	writeFile(t, dir, "jobs.json", `[{"Domain": "example.com.", "SubDomain": true, "Properties": [
		{"PropertyName": "RewriteBlackholing"}
	]}]`)

	r, err := Run(dir, Options{})
	require.NoError(t, err)

	found := false
	for _, v := range r.Violations {
		if v.Property == "RewriteBlackholing" {
			found = true
		}
	}
	assert.True(t, found, "a CNAME to a nonexistent name must be flagged as rewrite blackholing")
}

// DNAME substitution: a query under a DNAME owner is rewritten and resolves.
func TestRunResolvesDNAMESubstitution(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [{"Origin": "example.com.", "FileName": "example.zone", "NameServer": "ns1.example.com."}]
	}`, map[string]string{
		"example.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
a.example.com. IN DNAME b.example.com.
x.b.example.com. IN A 192.0.2.9
`,
	})

	r, err := Run(dir, Options{})
	require.NoError(t, err)
	assert.NotZero(t, r.ECCount)
}

// External nameserver contact: a referral points at a server name outside
// the allowed suffix, so NameserverContact must flag it when scoped.
func TestRunDetectsExternalNameserverContact(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [{"Origin": "example.com.", "FileName": "example.zone", "NameServer": "ns1.example.com."}]
	}`, map[string]string{
		"example.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
sub.example.com. IN NS ns1.otherprovider.net.
`,
	})
	writeFile(t, dir, "jobs.json", `[{"Domain": "example.com.", "SubDomain": true, "Properties": [
		{"PropertyName": "NameserverContact", "Value": ["example.com."]}
	]}]`)

	r, err := Run(dir, Options{})
	require.NoError(t, err)

	found := false
	for _, v := range r.Violations {
		if v.Property == "NameserverContact" {
			found = true
		}
	}
	assert.True(t, found, "a referral to a server outside the allowed suffix must be flagged")
}

func TestRunIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	dir := setupDir(t, `{
		"TopNameServers": ["ns1.example.com."],
		"ZoneFiles": [{"Origin": "example.com.", "FileName": "example.zone", "NameServer": "ns1.example.com."}]
	}`, map[string]string{
		"example.zone": `example.com. IN SOA ns1.example.com. hostmaster.example.com. 1 3600 600 604800 3600
example.com. IN NS ns1.example.com.
www.example.com. IN A 192.0.2.1
`,
	})

	r1, err := Run(dir, Options{})
	require.NoError(t, err)
	r2, err := Run(dir, Options{Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, r1.Violations, r2.Violations, "parallel and sequential runs must produce identical sorted violation lists")
}
