package manifest

import "github.com/terrazul/tpm/pkg/tomldoc"

// Encode serializes the manifest back to a TOML-shaped document,
// preserving dependency and profile insertion order and round-tripping
// the opaque exports/tasks/linked/metadata sections verbatim.
func (m *Manifest) Encode() []byte {
	doc := tomldoc.NewDocument()

	pkgTbl, _ := doc.Table("package")
	tomldoc.SetString(pkgTbl, "name", m.Package.Name)
	tomldoc.SetString(pkgTbl, "version", m.Package.Version)
	if m.Package.Description != "" {
		tomldoc.SetString(pkgTbl, "description", m.Package.Description)
	}
	if m.Package.License != "" {
		tomldoc.SetString(pkgTbl, "license", m.Package.License)
	}
	if len(m.Package.Authors) > 0 {
		tomldoc.SetStringSlice(pkgTbl, "authors", m.Package.Authors)
	}

	if len(m.Dependencies) > 0 {
		depsTbl, _ := doc.Table("dependencies")
		for _, d := range m.Dependencies {
			tomldoc.SetString(depsTbl, d.Name, d.Range)
		}
	}

	if len(m.Compatibility) > 0 {
		compatTbl, _ := doc.Table("compatibility")
		for _, d := range m.Compatibility {
			tomldoc.SetString(compatTbl, d.Name, d.Range)
		}
	}

	if len(m.Profiles) > 0 {
		profTbl, _ := doc.Table("profiles")
		for _, p := range m.Profiles {
			tomldoc.SetStringSlice(profTbl, p.Name, p.Include)
		}
	}

	if m.Exports != nil {
		doc.Root.Set("exports", m.Exports)
	}
	if len(m.Tasks) > 0 {
		doc.Root.Set("tasks", m.Tasks)
	}
	if m.Linked != nil {
		doc.Root.Set("linked", m.Linked)
	}
	if m.Metadata != nil {
		doc.Root.Set("metadata", m.Metadata)
	}
	for _, u := range m.Unknown {
		doc.Root.Set(u.Key, u.Value)
	}

	return doc.Encode()
}
