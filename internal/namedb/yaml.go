package namedb

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// yamlDoc mirrors the "apiVersion/kind/files" document shape the original
// tool's YAML export used, kept here purely as the marshalling target.
type yamlDoc struct {
	APIVersion int        `yaml:"apiVersion"`
	Kind       string     `yaml:"kind"`
	Files      []yamlFile `yaml:"files"`
}

type yamlFile struct {
	FileName string `yaml:"filename"`
	Comment  string `yaml:"comment,omitempty"`
	RACRC    string `yaml:"racrc,omitempty"`
	TSCRC    string `yaml:"tscrc,omitempty"`
}

// SaveYAML writes every known record to fileName as a single YAML
// document, in the database's iteration order. It is an export-only
// alternate serialization to SaveIni: this package has no YAML reader, so
// a YAML file cannot be loaded back into a Database.
func (db *Database) SaveYAML(fileName string) error {
	doc := yamlDoc{APIVersion: 1, Kind: "Files"}
	for _, e := range db.byName {
		yf := yamlFile{FileName: e.fileName, Comment: e.comment}
		if e.legacy != 0 {
			yf.RACRC = fmt.Sprintf("0x%08X", uint32(e.legacy))
		}
		if e.crc32 != 0 {
			yf.TSCRC = fmt.Sprintf("0x%08X", uint32(e.crc32))
		}
		doc.Files = append(doc.Files, yf)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("namedb: save_yaml: marshal: %w", err)
	}
	if err := os.WriteFile(fileName, out, 0o644); err != nil {
		return fmt.Errorf("namedb: save_yaml %q: %w", fileName, err)
	}
	return nil
}
