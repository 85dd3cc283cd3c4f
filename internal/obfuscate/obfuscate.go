// Package obfuscate implements the XOR scrambler applied to archive
// entries, archive file tables and some cooked payloads.
//
// The scrambler only deters casual inspection. It is not encryption.
package obfuscate

import (
	"path"
	"strconv"
	"strings"
)

// Key seeds.
const (
	// ArchiveSeed keys archive entries and file tables.
	ArchiveSeed uint32 = 0x54007b47
	// ScriptSeed keys cooked scripts.
	ScriptSeed uint32 = 0xB29F8D49
	// AnimationSeed keys cooked 2D animations.
	AnimationSeed uint32 = 0x7F3A5C21
)

// Key folds s, lowercased, into seed. Bytes are signed chars in the
// key formula: 0x80 and above sign-extend before the add.
func Key(seed uint32, s string) uint32 {
	k := seed
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		k = k*33 + uint32(int32(int8(c))) //nolint:gosec // sign extension is part of the format
	}
	return k
}

// ArchiveKey returns the key used for an archive entry named name.
func ArchiveKey(name string) uint32 {
	return Key(ArchiveSeed, name)
}

// TableKey returns the key used for an archive file table.
func TableKey(versionMajor uint16, changelist uint32) uint32 {
	s := strconv.FormatUint(uint64(versionMajor), 10) + strconv.FormatUint(uint64(changelist), 10)
	return Key(ArchiveSeed, s)
}

// FileKey returns the key for a cooked payload, derived from the base
// filename of name without its extension.
func FileKey(seed uint32, name string) uint32 {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	return Key(seed, strings.TrimSuffix(base, path.Ext(base)))
}

// Apply scrambles (or unscrambles) b in place. start is the stream
// position of b[0] relative to the start of the keyed region.
func Apply(b []byte, key uint32, start uint64) {
	for j := range b {
		i := start + uint64(j)
		shift := (i % 4) << 3
		b[j] ^= byte((key >> shift) + uint32(i/4)*101) //nolint:gosec // wrapping is part of the format
	}
}
