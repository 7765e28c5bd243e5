// Package store resolves where a tool's name database lives on disk and
// loads/saves it in the tool's selected serialization.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/go-ccmix/ccmix/internal/namedb"
)

const configSubdir = "ccmix"

// fileName returns the on-disk name for the database given a -format
// value. YAML is an export-only format (the original tool never reads
// it back), so persisted state always lives in the INI file; Resolve
// only ever returns the yaml name when the caller explicitly asked to
// export there.
func fileName(format string) string {
	if format == "yaml" {
		return "filenames.yaml"
	}
	return "filenames.db"
}

// Resolve finds the name database for format, preferring a user config
// directory, falling back to the directory containing the running
// binary, falling back to the current directory. If none of those
// already hold the file, it returns the user config directory candidate
// when that directory exists or can be created, and otherwise the name in
// the current directory, so a later Save can create it there.
func Resolve(format string) string {
	name := fileName(format)

	var candidates []string
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, configSubdir, name))
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), name))
	}
	candidates = append(candidates, name)

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if len(candidates) > 0 {
		if dir, err := os.UserConfigDir(); err == nil {
			if mkErr := os.MkdirAll(filepath.Join(dir, configSubdir), 0o755); mkErr == nil {
				return candidates[0]
			}
		}
		return candidates[len(candidates)-1]
	}
	return name
}

// Load reads the database at path. A missing file is not an error: this
// tool has no embedded XCC database to fall back to, so it starts from
// an empty one and logs that choice.
func Load(path string) (*namedb.Database, error) {
	db := namedb.New()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		klog.V(2).Infof("store: no existing name database at %q, starting empty", path)
		return db, nil
	}
	if err := db.ReadIni(path); err != nil {
		return nil, fmt.Errorf("store: load %q: %w", path, err)
	}
	return db, nil
}

// Save persists db to path in the serialization named by format ("ini"
// or "yaml").
func Save(db *namedb.Database, path, format string) error {
	if format == "yaml" {
		return db.SaveYAML(path)
	}
	return db.SaveIni(path)
}
