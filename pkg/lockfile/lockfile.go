// Package lockfile reads, merges, prunes, and atomically writes the
// deterministic record of a project's resolved dependency closure.
package lockfile

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/iancoleman/orderedmap"

	"github.com/terrazul/tpm/pkg/tomldoc"
	"github.com/terrazul/tpm/pkg/tzerr"
)

// FileName is the lockfile's standard filename at a project root.
const FileName = "agents-lock.toml"

// SchemaVersion is the lockfile schema tag this package reads and writes.
const SchemaVersion = 1

// Dependency is one name → range entry within a locked package's own
// declared dependencies.
type Dependency struct {
	Name  string
	Range string
}

// LockedPackage pins a single resolved dependency to an exact version,
// its tarball source, and its verified integrity string.
type LockedPackage struct {
	Version      string
	Resolved     string
	Integrity    string
	Dependencies []Dependency
	Yanked       bool
}

// Metadata carries the lockfile's provenance fields.
type Metadata struct {
	GeneratedAt string // RFC3339, UTC
	CLIVersion  string
}

// Lockfile is the ordered, deterministic record written to
// agents-lock.toml. Packages is keyed by name; serialization always
// sorts entries and their nested dependencies lexicographically,
// regardless of map iteration order.
type Lockfile struct {
	SchemaVersion int
	Packages      map[string]LockedPackage
	Metadata      Metadata
}

// New returns an empty lockfile at the current schema version.
func New() *Lockfile {
	return &Lockfile{SchemaVersion: SchemaVersion, Packages: map[string]LockedPackage{}}
}

// Read loads the lockfile from project_root/agents-lock.toml. A missing
// file is not an error: it returns (nil, nil), matching the source's
// Option<Lockfile> contract.
func Read(projectRoot string) (*Lockfile, error) {
	path := filepath.Join(projectRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, tzerr.StorageErr(err, path)
	}
	lf, err := Parse(data)
	if err != nil {
		return nil, tzerr.New(tzerr.ConfigInvalid, "lockfile %s: %v", path, err)
	}
	return lf, nil
}

// Parse decodes lockfile bytes.
func Parse(data []byte) (*Lockfile, error) {
	doc, err := tomldoc.Parse(data)
	if err != nil {
		return nil, err
	}

	lf := New()
	if v, ok := doc.Root.Get("version"); ok {
		switch n := v.(type) {
		case int64:
			lf.SchemaVersion = int(n)
		case int:
			lf.SchemaVersion = n
		}
	}

	if metaTbl, ok := doc.GetTable("metadata"); ok {
		lf.Metadata.GeneratedAt, _ = tomldoc.GetString(metaTbl, "generated_at")
		lf.Metadata.CLIVersion, _ = tomldoc.GetString(metaTbl, "cli_version")
	}

	if pkgsTbl, ok := doc.GetTable("packages"); ok {
		for _, name := range pkgsTbl.Keys() {
			raw, _ := pkgsTbl.Get(name)
			entryTbl, ok := raw.(*orderedmap.OrderedMap)
			if !ok {
				continue
			}
			lf.Packages[name] = decodeLockedPackage(entryTbl)
		}
	}

	return lf, nil
}

// Merge replaces entries in previous with the corresponding entries from
// updates; unchanged entries are preserved. Metadata is refreshed with
// generatedAt and cliVersion.
func Merge(previous *Lockfile, updates map[string]LockedPackage, generatedAt, cliVersion string) *Lockfile {
	out := New()
	if previous != nil {
		for name, entry := range previous.Packages {
			out.Packages[name] = entry
		}
		out.SchemaVersion = previous.SchemaVersion
	}
	for name, entry := range updates {
		out.Packages[name] = entry
	}
	out.Metadata = Metadata{GeneratedAt: generatedAt, CLIVersion: cliVersion}
	return out
}

// Prune keeps only the names present in keepNames, dropping everything
// else. Used after install computes the final transitive closure.
func Prune(lock *Lockfile, keepNames map[string]bool) *Lockfile {
	out := New()
	out.SchemaVersion = lock.SchemaVersion
	out.Metadata = lock.Metadata
	for name, entry := range lock.Packages {
		if keepNames[name] {
			out.Packages[name] = entry
		}
	}
	return out
}

// SortedNames returns the lockfile's package names in lexicographic order.
func (lf *Lockfile) SortedNames() []string {
	names := make([]string, 0, len(lf.Packages))
	for name := range lf.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
