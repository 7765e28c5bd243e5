// Package namedb maps mix archive member hashes back to the filenames
// they were computed from. The archive format itself never stores
// filenames, only hashes, so recovering names for display or extraction
// depends entirely on a database like this one that was built up from
// known names.
package namedb

import (
	"sort"

	"k8s.io/klog/v2"

	"github.com/go-ccmix/ccmix/internal/ccmixhash"
	"github.com/go-ccmix/ccmix/metrics"
)

// HashMethod selects which hash engine a lookup or insert applies to.
type HashMethod int

const (
	HashLegacy HashMethod = iota
	HashCRC32
	hashCount
	// HashAny tells Get_Entry-style lookups to try every known method in
	// turn rather than one specific one.
	HashAny = hashCount
)

// NameEntry is the result of a successful hash lookup: just enough to
// identify and annotate a member.
type NameEntry struct {
	FileName string
	Comment  string
}

// dataEntry is the full record kept per filename, holding both hash
// methods regardless of which one a caller populated.
type dataEntry struct {
	fileName string
	comment  string
	legacy   int32
	crc32    int32
}

// Database is a bidirectional filename<->hash mapping. The zero value is
// not usable; construct with New.
type Database struct {
	byName   map[string]*dataEntry
	byHash   [2]map[int32]*NameEntry
	saveName string
	dirty    bool
}

// New returns an empty, ready-to-use Database.
func New() *Database {
	return &Database{
		byName: make(map[string]*dataEntry),
		byHash: [2]map[int32]*NameEntry{
			make(map[int32]*NameEntry),
			make(map[int32]*NameEntry),
		},
	}
}

func hashOf(method HashMethod, upperName string) int32 {
	if method == HashCRC32 {
		return ccmixhash.CRC32HashBytes([]byte(upperName))
	}
	return ccmixhash.LegacyHashBytes([]byte(upperName))
}

// AddEntry records fileName (with an optional comment) in the database
// and computes its hash under method, or under both known methods when
// method is HashAny. It returns false when there was nothing left to do:
// the requested hash(es) were already populated, or method is invalid.
// A hash that is already non-zero for this name is never recomputed,
// matching the original tool's "first entry wins" semantics for a given
// method.
func (db *Database) AddEntry(fileName, comment string, method HashMethod) bool {
	e, ok := db.byName[fileName]
	if !ok {
		e = &dataEntry{fileName: fileName, comment: comment}
		db.byName[fileName] = e
		db.dirty = true
	}
	upper := upperASCII(fileName)

	switch method {
	case HashLegacy:
		if e.legacy != 0 {
			return false
		}
		e.legacy = hashOf(HashLegacy, upper)
		db.dirty = true
	case HashCRC32:
		if e.crc32 != 0 {
			return false
		}
		e.crc32 = hashOf(HashCRC32, upper)
		db.dirty = true
	case HashAny:
		if e.legacy != 0 && e.crc32 != 0 {
			return false
		}
		if e.legacy == 0 {
			e.legacy = hashOf(HashLegacy, upper)
			db.dirty = true
		}
		if e.crc32 == 0 {
			e.crc32 = hashOf(HashCRC32, upper)
			db.dirty = true
		}
	default:
		klog.V(4).Infof("namedb: add_entry: unhandled hash method %v", method)
		return false
	}
	return true
}

// GetEntry looks up hash under method, or under every known method when
// method is HashAny. The bool result reports whether a match was found.
func (db *Database) GetEntry(hash int32, method HashMethod) (NameEntry, bool) {
	db.regenerateIfDirty()

	if method != HashAny {
		if e, ok := db.byHash[method][hash]; ok {
			return *e, true
		}
		return NameEntry{}, false
	}
	for i := 0; i < int(hashCount); i++ {
		if e, ok := db.byHash[i][hash]; ok {
			return *e, true
		}
	}
	return NameEntry{}, false
}

func (db *Database) regenerateIfDirty() {
	if db.dirty {
		db.regenerateHashMaps()
		db.dirty = false
	}
}

// regenerateHashMaps rebuilds the hash->name lookup maps from the
// filename-keyed records, visiting them in filename order. Two filenames
// that hash to the same value under a method collide: the one that sorts
// first keeps the hash, while the other has that method's hash nulled
// out on its entry (so AddEntry can supply a fresh one later) and is
// dropped from that method's lookup map. The order in which the names
// were added does not affect which one keeps the hash.
func (db *Database) regenerateHashMaps() {
	db.byHash[HashLegacy] = make(map[int32]*NameEntry)
	db.byHash[HashCRC32] = make(map[int32]*NameEntry)

	names := make([]string, 0, len(db.byName))
	for name := range db.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e := db.byName[name]
		if e.legacy != 0 {
			if existing, collide := db.byHash[HashLegacy][e.legacy]; collide {
				klog.Warningf("namedb: hash collision, %q hashes to the same value as %q under the legacy hash, ignored", e.fileName, existing.FileName)
				metrics.HashCollisions.WithLabelValues("legacy").Inc()
				e.legacy = 0
			} else {
				db.byHash[HashLegacy][e.legacy] = &NameEntry{FileName: e.fileName, Comment: e.comment}
			}
		}
		if e.crc32 != 0 {
			if existing, collide := db.byHash[HashCRC32][e.crc32]; collide {
				klog.Warningf("namedb: hash collision, %q hashes to the same value as %q under CRC-32, ignored", e.fileName, existing.FileName)
				metrics.HashCollisions.WithLabelValues("crc32").Inc()
				e.crc32 = 0
			} else {
				db.byHash[HashCRC32][e.crc32] = &NameEntry{FileName: e.fileName, Comment: e.comment}
			}
		}
	}
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
