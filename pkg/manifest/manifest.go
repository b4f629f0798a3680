// Package manifest parses, validates, and serializes a project's bundle
// descriptor: the declared package identity, its dependency ranges, its
// advisory tool-compatibility ranges, named profiles over the
// dependency set, and the opaque exports/tasks/linked/metadata sections
// the kernel carries but never interprets.
package manifest

import (
	"path/filepath"
	"strings"

	"github.com/iancoleman/orderedmap"

	"github.com/terrazul/tpm/pkg/tomldoc"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// FileName is the manifest's standard filename at a project root.
const FileName = "agents.toml"

// Dependency is one ordered name → range entry, used for both
// dependencies and the advisory compatibility table.
type Dependency struct {
	Name  string
	Range string
}

// PackageInfo is the manifest's [package] table.
type PackageInfo struct {
	Name        string
	Version     string
	Description string
	License     string
	Authors     []string
}

// Profile is a named, ordered, unique subset of the dependency set.
type Profile struct {
	Name    string
	Include []string
}

// Manifest is the parsed, order-preserving representation of a project's
// bundle descriptor.
type Manifest struct {
	Package       PackageInfo
	Dependencies  []Dependency
	Compatibility []Dependency
	Profiles      []Profile

	// Exports, Tasks, Linked, and Metadata are opaque to the kernel: it
	// preserves them verbatim across a parse/encode round trip without
	// interpreting their semantics, beyond Validate's path-escape check
	// of every string value in Exports and of any "path" field in Tasks
	// and Linked.
	Exports  *orderedmap.OrderedMap
	Tasks    []*orderedmap.OrderedMap
	Linked   *orderedmap.OrderedMap
	Metadata *orderedmap.OrderedMap

	// Unknown holds any top-level keys this package does not recognize,
	// in document order, so they survive a parse/encode round trip.
	Unknown []UnknownEntry
}

// UnknownEntry is one unrecognized top-level key and its raw parsed value.
type UnknownEntry struct {
	Key   string
	Value interface{}
}

// Parse decodes manifest bytes. It fails closed with tzerr.ConfigInvalid
// on malformed documents and duplicate keys. Values of an unexpected type
// are not rejected: a non-string [package] field reads as empty, and
// non-string entries in [dependencies], [compatibility] and profile
// lists are skipped.
func Parse(data []byte) (*Manifest, error) {
	doc, err := tomldoc.Parse(data)
	if err != nil {
		return nil, tzerr.New(tzerr.ConfigInvalid, "manifest: %v", err)
	}

	m := &Manifest{}

	if pkgTbl, ok := doc.GetTable("package"); ok {
		m.Package.Name, _ = tomldoc.GetString(pkgTbl, "name")
		m.Package.Version, _ = tomldoc.GetString(pkgTbl, "version")
		m.Package.Description, _ = tomldoc.GetString(pkgTbl, "description")
		m.Package.License, _ = tomldoc.GetString(pkgTbl, "license")
		m.Package.Authors, _ = tomldoc.GetStringSlice(pkgTbl, "authors")
	}

	if depsTbl, ok := doc.GetTable("dependencies"); ok {
		for _, kv := range tomldoc.GetStringMap(depsTbl) {
			m.Dependencies = append(m.Dependencies, Dependency{Name: kv.Key, Range: kv.Value})
		}
	}

	if compatTbl, ok := doc.GetTable("compatibility"); ok {
		for _, kv := range tomldoc.GetStringMap(compatTbl) {
			m.Compatibility = append(m.Compatibility, Dependency{Name: kv.Key, Range: kv.Value})
		}
	}

	if profTbl, ok := doc.GetTable("profiles"); ok {
		for _, name := range profTbl.Keys() {
			include, _ := tomldoc.GetStringSlice(profTbl, name)
			m.Profiles = append(m.Profiles, Profile{Name: name, Include: include})
		}
	}

	if exportsTbl, ok := doc.GetTable("exports"); ok {
		m.Exports = exportsTbl
	}
	if tasks, ok := tomldoc.ArrayOfTables(doc.Root, "tasks"); ok {
		m.Tasks = tasks
	}
	if linkedTbl, ok := doc.GetTable("linked"); ok {
		m.Linked = linkedTbl
	}
	if metaTbl, ok := doc.GetTable("metadata"); ok {
		m.Metadata = metaTbl
	}

	known := map[string]bool{
		"package": true, "dependencies": true, "compatibility": true,
		"profiles": true, "exports": true, "tasks": true,
		"linked": true, "metadata": true,
	}
	for _, key := range doc.Root.Keys() {
		if known[key] {
			continue
		}
		raw, _ := doc.Root.Get(key)
		m.Unknown = append(m.Unknown, UnknownEntry{Key: key, Value: raw})
	}

	return m, nil
}

// Dependency looks up a declared dependency range by name.
func (m *Manifest) Dependency(name string) (string, bool) {
	for _, d := range m.Dependencies {
		if d.Name == name {
			return d.Range, true
		}
	}
	return "", false
}

// Validate enforces the manifest's structural invariants: every name
// referenced by a profile must exist in dependencies, and every path
// carried by exports/tasks must stay inside the package root. It is run
// once at parse time, never at install time.
func (m *Manifest) Validate() error {
	depSet := make(map[string]bool, len(m.Dependencies))
	for _, d := range m.Dependencies {
		depSet[d.Name] = true
	}

	seenProfile := make(map[string]bool, len(m.Profiles))
	for _, p := range m.Profiles {
		if seenProfile[p.Name] {
			return tzerr.New(tzerr.ConfigInvalid, "duplicate profile %q", p.Name)
		}
		seenProfile[p.Name] = true

		seenInclude := make(map[string]bool, len(p.Include))
		for _, name := range p.Include {
			if seenInclude[name] {
				return tzerr.New(tzerr.ConfigInvalid, "profile %q lists %q more than once", p.Name, name)
			}
			seenInclude[name] = true
			if !depSet[name] {
				return tzerr.New(tzerr.ConfigInvalid, "profile %q references undeclared dependency %q", p.Name, name)
			}
		}
	}

	if err := validateNoEscape(m.Exports, true); err != nil {
		return err
	}
	for _, task := range m.Tasks {
		if err := validateNoEscape(task, false); err != nil {
			return err
		}
	}
	if err := validateNoEscape(m.Linked, false); err != nil {
		return err
	}

	return nil
}

// validateNoEscape checks every "path" field reachable from tbl (at any
// depth), or every string value when allStrings is set, resolves inside
// the package root once joined and cleaned.
func validateNoEscape(tbl *orderedmap.OrderedMap, allStrings bool) error {
	if tbl == nil {
		return nil
	}
	for _, key := range tbl.Keys() {
		raw, _ := tbl.Get(key)
		switch v := raw.(type) {
		case string:
			if allStrings || key == "path" {
				if err := checkRelativeNoEscape(v); err != nil {
					return err
				}
			}
		case *orderedmap.OrderedMap:
			if err := validateNoEscape(v, allStrings); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkRelativeNoEscape(p string) error {
	if filepath.IsAbs(p) {
		return tzerr.SecurityViolationErr("manifest path must be relative to the package root", p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return tzerr.SecurityViolationErr("manifest path escapes the package root", p)
	}
	return nil
}
