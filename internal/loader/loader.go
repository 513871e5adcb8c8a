// Package loader parses metadata.json and jobs.json into a model.Config and
// a list of verification jobs (component 0). metadata.json accepts a set of
// synonym keys, grounded on original_source's get_key() helper in
// step1_Input_Parsing_and_Configuration_Initialization.py; jobs.json is read
// with its canonical keys only.
package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/classmarkets/dnsverify/internal/model"
	"github.com/classmarkets/dnsverify/internal/zonefile"
)

var discard = log.New(io.Discard, "", 0)

// PropertyDetail is one entry in a JobEntry's Properties list.
type PropertyDetail struct {
	PropertyName string
	Types        []string
	Value        json.RawMessage
}

// Job is one scoped verification request, per spec §4.F / §6.
type Job struct {
	Domain     model.Name
	SubDomain  bool
	Properties []PropertyDetail
}

// rawMetaZone mirrors one entry of metadata.json's ZoneFiles/zones array,
// accepting both the canonical and synonym key spellings by declaring both
// as alternate JSON tags and preferring whichever is present.
type rawMetaZone struct {
	FileName   string `json:"FileName"`
	FileNameAlt string `json:"file_name"`
	NameServer      interface{} `json:"NameServer"`
	AuthServersAlt  interface{} `json:"authoritative_servers"`
	Origin    string `json:"Origin"`
	OriginAlt string `json:"domain_name"`
}

type rawMetadata struct {
	TopNameServers []string      `json:"TopNameServers"`
	RootNSAlt      []string      `json:"root_nameservers"`
	ZoneFiles      []rawMetaZone `json:"ZoneFiles"`
	ZonesAlt       []rawMetaZone `json:"zones"`
}

func (z rawMetaZone) fileName() string {
	if z.FileName != "" {
		return z.FileName
	}
	return z.FileNameAlt
}

func (z rawMetaZone) origin() string {
	if z.Origin != "" {
		return z.Origin
	}
	return z.OriginAlt
}

func (z rawMetaZone) nameServers() []string {
	v := z.NameServer
	if v == nil {
		v = z.AuthServersAlt
	}
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
		return []string{x}
	case []interface{}:
		var out []string
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (m rawMetadata) roots() []string {
	if len(m.TopNameServers) > 0 {
		return m.TopNameServers
	}
	return m.RootNSAlt
}

func (m rawMetadata) zones() []rawMetaZone {
	if len(m.ZoneFiles) > 0 {
		return m.ZoneFiles
	}
	return m.ZonesAlt
}

// LoadMetadata reads metadata.json and the zone files it references from
// dir/zone_files (spec §6: "<input_dir> contains zone_files/metadata.json"),
// building a model.Config. Per spec §7: a malformed metadata.json is fatal
// (MalformedInput); a missing referenced zone file only warns and registers
// an empty zone; a zone with no SOA only warns and is flagged Incomplete,
// not excluded.
func LoadMetadata(dir string, warn *log.Logger) (*model.Config, error) {
	if warn == nil {
		warn = discard
	}
	zoneDir := filepath.Join(dir, "zone_files")
	path := filepath.Join(zoneDir, "metadata.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading zone_files/metadata.json: %v", ErrMalformedInput, err)
	}

	var raw rawMetadata
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding zone_files/metadata.json: %v", ErrMalformedInput, err)
	}

	cfg := &model.Config{Zones: map[model.ServerId][]*model.Zone{}}

	serverSet := map[model.ServerId]bool{}
	for _, r := range raw.roots() {
		id := model.ServerId(r)
		cfg.Roots = append(cfg.Roots, id)
		serverSet[id] = true
	}

	for _, zinfo := range raw.zones() {
		originStr := zinfo.origin()
		file := zinfo.fileName()
		if originStr == "" || file == "" {
			warn.Printf("loader: skipping malformed zone entry (missing Origin/FileName): %+v", zinfo)
			continue
		}

		origin := model.NewName(originStr)

		var src string
		zpath := filepath.Join(zoneDir, file)
		if b, err := os.ReadFile(zpath); err != nil {
			warn.Printf("loader: zone file %s not found, registering empty zone for %s", zpath, originStr)
		} else {
			src = string(b)
		}

		parsed := zonefile.Parse(src, origin, warn)
		if !parsed.HasSOA {
			warn.Printf("loader: zone %s has no SOA at its origin; flagged incomplete", originStr)
		}

		nsList := zinfo.nameServers()
		for _, ns := range nsList {
			id := model.ServerId(ns)
			serverSet[id] = true
			zone := &model.Zone{
				Origin:     origin,
				Server:     id,
				Records:    parsed.Records,
				Incomplete: !parsed.HasSOA,
			}
			cfg.Zones[id] = append(cfg.Zones[id], zone)
		}
	}

	for id := range serverSet {
		cfg.Servers = append(cfg.Servers, id)
	}

	return cfg, nil
}

// rawJob mirrors one jobs.json entry.
type rawJob struct {
	Domain    string           `json:"Domain"`
	SubDomain bool             `json:"SubDomain"`
	Properties []rawProperty   `json:"Properties"`
}

type rawProperty struct {
	PropertyName string          `json:"PropertyName"`
	Types        []string        `json:"Types"`
	Value        json.RawMessage `json:"Value"`
}

// LoadJobs reads jobs.json from dir, if present. A missing jobs.json is not
// an error: the verifier then runs every built-in property over the whole
// namespace (SubDomain scope at the root).
func LoadJobs(dir string) ([]Job, error) {
	path := filepath.Join(dir, "jobs.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading jobs.json: %v", ErrMalformedInput, err)
	}

	var raw []rawJob
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding jobs.json: %v", ErrMalformedInput, err)
	}

	jobs := make([]Job, 0, len(raw))
	for _, r := range raw {
		j := Job{Domain: model.NewName(r.Domain), SubDomain: r.SubDomain}
		for _, p := range r.Properties {
			j.Properties = append(j.Properties, PropertyDetail{
				PropertyName: p.PropertyName,
				Types:        p.Types,
				Value:        p.Value,
			})
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
