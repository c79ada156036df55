package vmapi

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// specFile is the on-disk shape of an offset-spec document: one or more
// named ART version entries, so a single file can carry a whole support
// matrix.
type specFile struct {
	Specs []OffsetSpec `yaml:"specs"`
}

// LoadOffsetSpecs parses a YAML offset-spec document (see specFile) into
// a version -> OffsetSpec lookup table.
func LoadOffsetSpecs(data []byte) (map[string]*OffsetSpec, error) {
	var sf specFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("vmapi: parse offset spec: %w", err)
	}
	out := make(map[string]*OffsetSpec, len(sf.Specs))
	for i := range sf.Specs {
		s := sf.Specs[i]
		if s.Version == "" {
			return nil, fmt.Errorf("vmapi: offset spec missing version field")
		}
		out[s.Version] = &s
	}
	return out, nil
}

// DefaultOffsetSpecsYAML is a small built-in support matrix for common
// ART releases, used when no external spec file is supplied. Real
// offsets are build-specific; these are illustrative placeholders wired
// through the same loader a real spec file would use.
const DefaultOffsetSpecsYAML = `
specs:
  - version: "art-9"
    art_method:
      jni_code: 32
      quick_code: 40
      interpreter_code: 24
      access_flags: 4
    runtime:
      class_linker: 472
    class_linker:
      quick_generic_jni_trampoline: 704
  - version: "art-10"
    art_method:
      jni_code: 32
      quick_code: 40
      interpreter_code: 24
      access_flags: 4
    runtime:
      class_linker: 480
    class_linker:
      quick_generic_jni_trampoline: 712
`
