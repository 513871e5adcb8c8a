// Package verifier wires the pipeline end to end: load configuration, build
// the label trie, enumerate equivalence classes, build one interpretation
// graph per in-scope EC, check properties, and aggregate a report.
package verifier

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/classmarkets/dnsverify/internal/ec"
	"github.com/classmarkets/dnsverify/internal/graph"
	"github.com/classmarkets/dnsverify/internal/loader"
	"github.com/classmarkets/dnsverify/internal/memo"
	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/classmarkets/dnsverify/internal/property"
	"github.com/classmarkets/dnsverify/internal/report"
	"github.com/classmarkets/dnsverify/internal/trie"
	"github.com/miekg/dns"
)

// AllProperties is the full built-in catalog, in the fixed order the
// summary section lists them.
var AllProperties = []string{
	"DelegationConsistency",
	"LameDelegation",
	"NameserverContact",
	"QueryRewrite",
	"ResponseConsistency",
	"ResponseReturned",
	"ResponseValue",
	"RewriteBlackholing",
	"RewriteLoop",
	"Rewrites",
}

// Options configures a Run.
type Options struct {
	// Workers, when > 1, fans EC processing out over a bounded goroutine
	// pool (spec §5's optional parallel mode). 0 or 1 means sequential.
	Workers int
	// Limits overrides graph.DefaultLimits for every EC build.
	Limits graph.Limits
	// Warn receives parse/input warnings. Defaults to a discarding logger.
	Warn *log.Logger
}

func (o Options) warn() *log.Logger {
	if o.Warn != nil {
		return o.Warn
	}
	return log.New(io.Discard, "", 0)
}

// Run executes the full pipeline against the metadata.json/jobs.json found
// in dir, producing an aggregated report.Report.
func Run(dir string, opts Options) (report.Report, error) {
	warn := opts.warn()

	cfg, err := loader.LoadMetadata(dir, warn)
	if err != nil {
		return report.Report{}, fmt.Errorf("loading metadata: %w", err)
	}

	jobs, err := loader.LoadJobs(dir)
	if err != nil {
		return report.Report{}, fmt.Errorf("loading jobs: %w", err)
	}
	if len(jobs) == 0 {
		jobs = []loader.Job{defaultJob()}
	}

	t := trie.Build(cfg)
	classes := ec.Generate(t, ec.DefaultTypes)

	limits := opts.Limits
	if limits.Fuel <= 0 {
		limits.Fuel = graph.DefaultLimits().Fuel
	}
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = graph.DefaultLimits().MaxSteps
	}
	if limits.Lookup == nil {
		cache := memo.New(cfg, 10_000)
		limits.Lookup = cache.LookupZone
	}

	var violations []property.Violation
	var mu sync.Mutex
	collect := func(vs []property.Violation) {
		if len(vs) == 0 {
			return
		}
		mu.Lock()
		violations = append(violations, vs...)
		mu.Unlock()
	}

	work := buildWork(classes, jobs, warn)

	if opts.Workers > 1 {
		runParallel(work, opts.Workers, cfg, limits, collect)
	} else {
		for _, w := range work {
			collect(evalOne(cfg, limits, w))
		}
	}

	for _, sp := range structuralProperties() {
		collect(sp.CheckConfig(cfg))
	}

	return report.Aggregate(violations, countZones(cfg), len(classes), AllProperties), nil
}

type unit struct {
	class ec.EC
	props []property.ECProperty
}

func buildWork(classes []ec.EC, jobs []loader.Job, warn *log.Logger) []unit {
	var out []unit
	for _, class := range classes {
		var props []property.ECProperty
		for _, j := range jobs {
			if !inScope(j, class) {
				continue
			}
			for _, pd := range j.Properties {
				p, ok := buildECProperty(pd, warn)
				if ok {
					props = append(props, p)
				}
			}
		}
		if len(props) > 0 {
			out = append(out, unit{class: class, props: props})
		}
	}
	return out
}

func inScope(j loader.Job, class ec.EC) bool {
	if j.SubDomain {
		return j.Domain.IsAncestorOrEqual(class.Domain)
	}
	return j.Domain.Equal(class.Domain)
}

func evalOne(cfg *model.Config, limits graph.Limits, u unit) []property.Violation {
	g := graph.Build(cfg, u.class, limits)
	var out []property.Violation
	for _, p := range u.props {
		out = append(out, p.CheckEC(g, u.class)...)
	}
	return out
}

// runParallel fans work out over a bounded pool of goroutines and funnels
// results through collect, matching the teacher's own sync.WaitGroup +
// mutex-guarded shared-state idiom (resolver.go's concurrent NS queries)
// rather than an unbounded goroutine-per-item spawn.
func runParallel(work []unit, workers int, cfg *model.Config, limits graph.Limits, collect func([]property.Violation)) {
	jobsCh := make(chan unit)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobsCh {
				collect(evalOne(cfg, limits, u))
			}
		}()
	}

	for _, u := range work {
		jobsCh <- u
	}
	close(jobsCh)
	wg.Wait()
}

func structuralProperties() []property.StructuralProperty {
	return []property.StructuralProperty{property.DelegationConsistency{}}
}

func defaultJob() loader.Job {
	var props []loader.PropertyDetail
	for _, name := range AllProperties {
		props = append(props, loader.PropertyDetail{PropertyName: name})
	}
	return loader.Job{Domain: model.Root(), SubDomain: true, Properties: props}
}

func countZones(cfg *model.Config) int {
	n := 0
	for _, zs := range cfg.Zones {
		n += len(zs)
	}
	return n
}

// buildECProperty maps one jobs.json PropertyDetail onto the corresponding
// concrete property.ECProperty, reading its Types/Value parameters. Unknown
// or structural-only names are rejected (ok=false) rather than silently
// running nothing.
func buildECProperty(pd loader.PropertyDetail, warn *log.Logger) (property.ECProperty, bool) {
	switch pd.PropertyName {
	case "ResponseValue":
		return property.ResponseValue{Types: parseTypes(pd.Types), Values: parseStringSlice(pd.Value, warn)}, true
	case "Rewrites":
		return property.Rewrites{Max: parseInt(pd.Value, warn)}, true
	case "RewriteBlackholing":
		return property.RewriteBlackholing{}, true
	case "QueryRewrite":
		return property.QueryRewrite{AllowedSuffixes: parseNameSlice(pd.Value, warn)}, true
	case "NameserverContact":
		return property.NameserverContact{AllowedSuffixes: parseNameSlice(pd.Value, warn)}, true
	case "ResponseConsistency", "AnswerInconsistency":
		return property.ResponseConsistency{}, true
	case "ResponseReturned":
		return property.ResponseReturned{}, true
	case "LameDelegation":
		return property.LameDelegation{}, true
	case "RewriteLoop":
		return property.RewriteLoop{}, true
	case "DelegationConsistency", "StructuralDelegationConsistency":
		// Structural: evaluated once over the Config, not per EC.
		return nil, false
	default:
		warn.Printf("verifier: unknown property %q, skipping", pd.PropertyName)
		return nil, false
	}
}

func parseTypes(names []string) []model.RRType {
	var out []model.RRType
	for _, n := range names {
		if t, ok := rrTypeByName(n); ok {
			out = append(out, t)
		}
	}
	return out
}

func parseStringSlice(raw json.RawMessage, warn *log.Logger) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		warn.Printf("verifier: property Value is not a string list: %v", err)
		return nil
	}
	return out
}

func parseNameSlice(raw json.RawMessage, warn *log.Logger) []model.Name {
	strs := parseStringSlice(raw, warn)
	out := make([]model.Name, len(strs))
	for i, s := range strs {
		out[i] = model.NewName(s)
	}
	return out
}

func parseInt(raw json.RawMessage, warn *log.Logger) int {
	if len(raw) == 0 {
		return 0
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		warn.Printf("verifier: property Value is not an integer: %v", err)
		return 0
	}
	return v
}

func rrTypeByName(name string) (model.RRType, bool) {
	t, ok := dns.StringToType[name]
	return t, ok
}
