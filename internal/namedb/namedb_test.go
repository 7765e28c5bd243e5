package namedb

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-ccmix/ccmix/internal/ccmixhash"
)

func TestAddEntry_ComputesBothHashes(t *testing.T) {
	db := New()
	require.True(t, db.AddEntry("RULES.INI", "global rules", HashAny))

	want := ccmixhash.LegacyHashName("RULES.INI")
	name, ok := db.GetEntry(want, HashLegacy)
	require.True(t, ok)
	require.Equal(t, "RULES.INI", name.FileName)
	require.Equal(t, "global rules", name.Comment)

	wantCRC := ccmixhash.CRC32HashName("RULES.INI")
	name, ok = db.GetEntry(wantCRC, HashCRC32)
	require.True(t, ok)
	require.Equal(t, "RULES.INI", name.FileName)
}

func TestAddEntry_DoesNotRecomputeExistingHash(t *testing.T) {
	db := New()
	require.True(t, db.AddEntry("X.DAT", "", HashLegacy))
	require.False(t, db.AddEntry("X.DAT", "", HashLegacy))
}

func TestAddEntry_UnknownMethod(t *testing.T) {
	db := New()
	require.False(t, db.AddEntry("X.DAT", "", HashMethod(99)))
}

func TestGetEntry_NotFound(t *testing.T) {
	db := New()
	_, ok := db.GetEntry(0x12345678, HashAny)
	require.False(t, ok)
}

func TestRegenerateHashMaps_CollisionNullsSecondEntry(t *testing.T) {
	db := New()
	db.byName["FIRST.MIX"] = &dataEntry{fileName: "FIRST.MIX", legacy: 0x1000}
	db.byName["SECOND.MIX"] = &dataEntry{fileName: "SECOND.MIX", legacy: 0x1000}
	db.dirty = true

	db.regenerateIfDirty()

	name, ok := db.GetEntry(0x1000, HashLegacy)
	require.True(t, ok)
	require.Equal(t, "FIRST.MIX", name.FileName)

	// The losing entry's hash was nulled so a later AddEntry could
	// recompute it; it no longer resolves under any lookup.
	require.Zero(t, db.byName["SECOND.MIX"].legacy)
}

func TestIni_SaveThenReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "names.ini")

	db := New()
	require.True(t, db.AddEntry("CONQUER.MIX", "main archive", HashAny))
	require.True(t, db.AddEntry("EXPAND.MIX", "", HashLegacy))
	require.NoError(t, db.SaveIni(path))

	loaded := New()
	require.NoError(t, loaded.ReadIni(path))

	name, ok := loaded.GetEntry(ccmixhash.LegacyHashName("CONQUER.MIX"), HashLegacy)
	require.True(t, ok)
	require.Equal(t, "main archive", name.Comment)

	_, ok = loaded.GetEntry(ccmixhash.CRC32HashName("EXPAND.MIX"), HashCRC32)
	require.False(t, ok)
}

func TestIni_ReadDoesNotOverwriteExistingEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "names.ini")

	seed := New()
	require.True(t, seed.AddEntry("A.DAT", "from disk", HashAny))
	require.NoError(t, seed.SaveIni(path))

	db := New()
	require.True(t, db.AddEntry("A.DAT", "already in memory", HashAny))
	require.NoError(t, db.ReadIni(path))

	require.Equal(t, "already in memory", db.byName["A.DAT"].comment)
}

func writeXCCTranch(buf *bytes.Buffer, entries [][2]string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		buf.WriteString(e[0])
		buf.WriteByte(0)
		buf.WriteString(e[1])
		buf.WriteByte(0)
	}
}

func TestReadFromXCC_FourTranches(t *testing.T) {
	var buf bytes.Buffer
	writeXCCTranch(&buf, [][2]string{{"TD.MIX", "td"}})
	writeXCCTranch(&buf, [][2]string{{"RA.MIX", "ra"}})
	writeXCCTranch(&buf, [][2]string{{"TS.MIX", "ts"}})
	writeXCCTranch(&buf, [][2]string{{"YR.MIX", "yr"}})

	dir := t.TempDir()
	path := filepath.Join(dir, "local mix database.dat")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	db := New()
	require.NoError(t, db.ReadFromXCC(path))

	name, ok := db.GetEntry(ccmixhash.LegacyHashName("TD.MIX"), HashLegacy)
	require.True(t, ok)
	require.Equal(t, "td", name.Comment)

	name, ok = db.GetEntry(ccmixhash.CRC32HashName("YR.MIX"), HashCRC32)
	require.True(t, ok)
	require.Equal(t, "yr", name.Comment)
}

func TestSaveYAML_WritesExpectedShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "names.yaml")

	db := New()
	require.True(t, db.AddEntry("SOUNDS.MIX", "audio assets", HashAny))
	require.NoError(t, db.SaveYAML(path))

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(out), "apiVersion: 1")
	require.Contains(t, string(out), "kind: Files")
	require.Contains(t, string(out), "filename: SOUNDS.MIX")
	require.Contains(t, string(out), "comment: audio assets")
}
