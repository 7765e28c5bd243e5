package namedb

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"
)

const (
	keyComment = "Comment"
	keyLegacy  = "CnCHash"
	keyCRC32   = "CRC32Hash"
)

// ReadIni merges fileName's sections into the database: one section per
// member, named after the file it describes. A filename already present
// in the database is left untouched; ReadIni never overwrites an
// existing entry, matching the first-loaded-wins behaviour of the
// original tool's persistence layer. Hash fields that fail to parse as
// hex are treated as absent rather than failing the whole load.
func (db *Database) ReadIni(fileName string) error {
	if fileName != "" {
		db.saveName = fileName
	}
	if db.saveName == "" {
		return fmt.Errorf("namedb: read_ini: no file name given")
	}

	cfg, err := ini.Load(db.saveName)
	if err != nil {
		return fmt.Errorf("namedb: read_ini %q: %w", db.saveName, err)
	}

	for _, sec := range cfg.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		if _, exists := db.byName[sec.Name()]; exists {
			continue
		}

		e := &dataEntry{
			fileName: sec.Name(),
			comment:  sec.Key(keyComment).String(),
			legacy:   parseHexHash(sec, keyLegacy),
			crc32:    parseHexHash(sec, keyCRC32),
		}
		db.byName[e.fileName] = e
		db.dirty = true
	}

	db.regenerateIfDirty()
	return nil
}

func parseHexHash(sec *ini.Section, key string) int32 {
	v := sec.Key(key).String()
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0
	}
	return int32(uint32(n))
}

// SaveIni writes every known record to fileName, one INI section per
// filename, in the database's iteration order. Zero hashes and empty
// comments are omitted from their section.
func (db *Database) SaveIni(fileName string) error {
	if fileName != "" {
		db.saveName = fileName
	}
	if db.saveName == "" {
		return fmt.Errorf("namedb: save_ini: no file name given")
	}

	cfg := ini.Empty()
	for _, e := range db.byName {
		sec, err := cfg.NewSection(e.fileName)
		if err != nil {
			return fmt.Errorf("namedb: save_ini: section %q: %w", e.fileName, err)
		}
		if e.comment != "" {
			sec.Key(keyComment).SetValue(e.comment)
		}
		if e.legacy != 0 {
			sec.Key(keyLegacy).SetValue(fmt.Sprintf("%08X", uint32(e.legacy)))
		}
		if e.crc32 != 0 {
			sec.Key(keyCRC32).SetValue(fmt.Sprintf("%08X", uint32(e.crc32)))
		}
	}

	if err := cfg.SaveTo(db.saveName); err != nil {
		return fmt.Errorf("namedb: save_ini %q: %w", db.saveName, err)
	}
	return nil
}
