package lockfile

import (
	"sort"

	"github.com/iancoleman/orderedmap"

	"github.com/terrazul/tpm/pkg/tomldoc"
)

func decodeLockedPackage(tbl *orderedmap.OrderedMap) LockedPackage {
	var lp LockedPackage
	lp.Version, _ = tomldoc.GetString(tbl, "version")
	lp.Resolved, _ = tomldoc.GetString(tbl, "resolved")
	lp.Integrity, _ = tomldoc.GetString(tbl, "integrity")
	lp.Yanked, _ = tomldoc.GetBool(tbl, "yanked")

	if raw, ok := tbl.Get("dependencies"); ok {
		if depsTbl, ok := raw.(*orderedmap.OrderedMap); ok {
			for _, kv := range tomldoc.GetStringMap(depsTbl) {
				lp.Dependencies = append(lp.Dependencies, Dependency{Name: kv.Key, Range: kv.Value})
			}
		}
	}
	return lp
}

// Encode serializes the lockfile deterministically: outer table order is
// version, packages, metadata; packages entries are sorted by name;
// entry fields are written in a fixed order; nested dependencies are
// sorted by name.
func (lf *Lockfile) Encode() []byte {
	doc := tomldoc.NewDocument()
	doc.Root.Set("version", int64(lf.SchemaVersion))

	pkgsTbl, _ := doc.Table("packages")
	for _, name := range lf.SortedNames() {
		encodeLockedPackage(pkgsTbl, name, lf.Packages[name])
	}

	metaTbl, _ := doc.Table("metadata")
	tomldoc.SetString(metaTbl, "generated_at", lf.Metadata.GeneratedAt)
	tomldoc.SetString(metaTbl, "cli_version", lf.Metadata.CLIVersion)

	return doc.Encode()
}

func encodeLockedPackage(pkgsTbl *orderedmap.OrderedMap, name string, entry LockedPackage) {
	tbl := orderedmap.New()
	tomldoc.SetString(tbl, "version", entry.Version)
	tomldoc.SetString(tbl, "resolved", entry.Resolved)
	tomldoc.SetString(tbl, "integrity", entry.Integrity)

	depsTbl := orderedmap.New()
	sorted := append([]Dependency{}, entry.Dependencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, d := range sorted {
		tomldoc.SetString(depsTbl, d.Name, d.Range)
	}
	tbl.Set("dependencies", depsTbl)
	tbl.Set("yanked", entry.Yanked)

	pkgsTbl.Set(name, tbl)
}
