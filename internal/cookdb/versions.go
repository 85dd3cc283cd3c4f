package cookdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/cook/internal/assetpath"
)

// CookerVersion is advanced when the cooker changes in a way that
// invalidates every cooked file.
const CookerVersion uint32 = 39

// dataVersions tracks per-type cooked data versions. Bumping an entry
// forces every file of that type to recook.
var dataVersions = [assetpath.TypeCount]uint32{
	assetpath.Unknown:        1,
	assetpath.Animation2D:    10,
	assetpath.Csv:            1,
	assetpath.Effect:         1,
	assetpath.EffectHeader:   1,
	assetpath.Exe:            1,
	assetpath.Font:           7,
	assetpath.FxBank:         3,
	assetpath.HTML:           1,
	assetpath.JSON:           1,
	assetpath.PEMCertificate: 1,
	assetpath.Protobuf:       1,
	assetpath.SaveGame:       1,
	assetpath.SceneAsset:     2,
	assetpath.ScenePrefab:    2,
	assetpath.Script:         7,
	assetpath.SoundBank:      13,
	assetpath.SoundProject:   13,
	assetpath.Texture0:       3,
	assetpath.Texture1:       1,
	assetpath.Texture2:       1,
	assetpath.Texture3:       1,
	assetpath.Texture4:       1,
	assetpath.Text:           1,
	assetpath.UIMovie:        9,
	assetpath.Wav:            1,
	assetpath.XML:            1,
	assetpath.ScriptProject:  7,
	assetpath.Cs:             1,
	assetpath.Video:          1,
}

// DataVersion returns the cooked data version of t.
func DataVersion(t assetpath.FileType) uint32 {
	if int(t) >= len(dataVersions) {
		return 0
	}
	return dataVersions[t]
}

// IsOneToOne reports whether one source file produces exactly one cooked
// file of type t. One-to-one types carry no metadata file; staleness is
// a direct source/cooked timestamp comparison.
func IsOneToOne(t assetpath.FileType) bool {
	switch t {
	case assetpath.Effect, assetpath.ScriptProject, assetpath.SoundProject, assetpath.UIMovie:
		return false
	default:
		return true
	}
}

const versionsFile = "version_data.dat"

type versionTable struct {
	data   [assetpath.TypeCount]uint32
	cooker [assetpath.TypeCount]uint32
}

func currentVersions() versionTable {
	var v versionTable
	v.data = dataVersions
	for i := range v.cooker {
		v.cooker[i] = CookerVersion
	}
	return v
}

func (v *versionTable) stale(t assetpath.FileType) bool {
	return v.data[t] != dataVersions[t] || v.cooker[t] != CookerVersion
}

func (v *versionTable) ok() bool {
	for i := range v.data {
		t := assetpath.FileType(i)
		if IsOneToOne(t) && v.stale(t) {
			return false
		}
	}
	return true
}

func (v *versionTable) marshal() []byte {
	var buf bytes.Buffer
	buf.Grow(4 + 8*assetpath.TypeCount)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(assetpath.TypeCount)) //nolint:errcheck // bytes.Buffer writes cannot fail
	for i := range v.data {
		_ = binary.Write(&buf, binary.LittleEndian, [2]uint32{v.data[i], v.cooker[i]}) //nolint:errcheck // bytes.Buffer writes cannot fail
	}
	return buf.Bytes()
}

func parseVersions(data []byte) (versionTable, bool) {
	var v versionTable
	if len(data) != 4+8*assetpath.TypeCount {
		return v, false
	}
	if binary.LittleEndian.Uint32(data) != uint32(assetpath.TypeCount) {
		return v, false
	}
	data = data[4:]
	for i := range v.data {
		v.data[i] = binary.LittleEndian.Uint32(data[8*i:])
		v.cooker[i] = binary.LittleEndian.Uint32(data[8*i+4:])
	}
	return v, true
}

// ProcessVersions reconciles the one-to-one version table in the content
// directory. A missing or unreadable table is replaced by the current
// versions and nothing is deleted. When a type's versions changed, every
// cooked file of that type is deleted so it recooks, then the table is
// rewritten.
func (db *DB) ProcessVersions() error {
	dir := db.layout.Dir(assetpath.DirContent)
	name := filepath.Join(dir, versionsFile)
	cur := currentVersions()

	data, err := os.ReadFile(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cookdb: read %s: %w", name, err)
	}
	old, ok := parseVersions(data)
	if !ok {
		return db.saveVersions(name, &cur)
	}
	if old.ok() {
		return nil
	}

	files, err := assetpath.ListFiles(dir, "")
	if err != nil {
		return fmt.Errorf("cookdb: list %s: %w", dir, err)
	}
	removed := 0
	for _, f := range files {
		t := assetpath.TypeFromExtension(filepath.Ext(f))
		if t == assetpath.Unknown || !IsOneToOne(t) || !old.stale(t) {
			continue
		}
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("cookdb: remove stale %s: %w", f, err)
		}
		removed++
	}
	db.log().Info("removed cooked files with stale versions", "count", removed)
	return db.saveVersions(name, &cur)
}

func (db *DB) saveVersions(name string, v *versionTable) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("cookdb: %w", err)
	}
	if err := os.WriteFile(name, v.marshal(), 0o644); err != nil { //nolint:gosec // cooked data is not secret
		return fmt.Errorf("cookdb: write %s: %w", name, err)
	}
	return nil
}
