// Package sar reads and writes .sar archives.
//
// An archive is a fixed 48-byte header, entry bodies aligned to 8 bytes,
// and a file table. The table is serialized, ZSTD compressed, scrambled
// with a key derived from the build version and followed by a CRC-32 of
// the scrambled bytes. All integers are little-endian.
package sar

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/meigma/cook/internal/assetpath"
)

// Format constants.
const (
	Signature  uint32 = 0xDA7F
	Version    uint32 = 21
	HeaderSize        = 48

	// Alignment is the alignment of entry bodies and the file table.
	Alignment = 8
)

// Errors returned when reading archives.
var (
	ErrBadSignature    = errors.New("sar: bad signature")
	ErrVersionMismatch = errors.New("sar: unsupported version")
	ErrCorrupt         = errors.New("sar: corrupt archive")
	ErrNotFound        = errors.New("sar: entry not found")
)

// Header is the archive header.
type Header struct {
	TotalSize        uint64
	TableOffset      uint64
	EntryCount       uint32
	GameDirectory    assetpath.GameDirectory
	TableCompressed  bool
	TableSize        uint32
	Variation        uint16
	VersionMajor     uint16
	Changelist       uint32
	DirectoryQueries bool
	Obfuscated       bool
	Platform         assetpath.Platform
}

func boolU16(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}

// MarshalBinary encodes the header in its 48-byte form.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, HeaderSize)
	b = binary.LittleEndian.AppendUint32(b, Signature)
	b = binary.LittleEndian.AppendUint32(b, Version)
	b = binary.LittleEndian.AppendUint64(b, h.TotalSize)
	b = binary.LittleEndian.AppendUint64(b, h.TableOffset)
	b = binary.LittleEndian.AppendUint32(b, h.EntryCount)
	b = binary.LittleEndian.AppendUint16(b, uint16(h.GameDirectory))
	b = binary.LittleEndian.AppendUint16(b, boolU16(h.TableCompressed))
	b = binary.LittleEndian.AppendUint32(b, h.TableSize)
	b = binary.LittleEndian.AppendUint16(b, h.Variation)
	b = binary.LittleEndian.AppendUint16(b, h.VersionMajor)
	b = binary.LittleEndian.AppendUint32(b, h.Changelist)
	b = binary.LittleEndian.AppendUint16(b, boolU16(h.DirectoryQueries))
	b = append(b, byte(boolU16(h.Obfuscated)), byte(h.Platform))
	return b, nil
}

// UnmarshalBinary decodes a 48-byte header.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: short header (%d bytes)", ErrCorrupt, len(b))
	}
	if sig := binary.LittleEndian.Uint32(b[0:]); sig != Signature {
		return fmt.Errorf("%w: 0x%X", ErrBadSignature, sig)
	}
	if v := binary.LittleEndian.Uint32(b[4:]); v != Version {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, v)
	}
	*h = Header{
		TotalSize:        binary.LittleEndian.Uint64(b[8:]),
		TableOffset:      binary.LittleEndian.Uint64(b[16:]),
		EntryCount:       binary.LittleEndian.Uint32(b[24:]),
		GameDirectory:    assetpath.GameDirectory(binary.LittleEndian.Uint16(b[28:])), //nolint:gosec // validated below
		TableCompressed:  binary.LittleEndian.Uint16(b[30:]) != 0,
		TableSize:        binary.LittleEndian.Uint32(b[32:]),
		Variation:        binary.LittleEndian.Uint16(b[36:]),
		VersionMajor:     binary.LittleEndian.Uint16(b[38:]),
		Changelist:       binary.LittleEndian.Uint32(b[40:]),
		DirectoryQueries: binary.LittleEndian.Uint16(b[44:]) != 0,
		Obfuscated:       b[46] != 0,
		Platform:         assetpath.Platform(b[47]),
	}
	if h.GameDirectory != assetpath.DirConfig && h.GameDirectory != assetpath.DirContent {
		return fmt.Errorf("%w: game directory %d", ErrCorrupt, h.GameDirectory)
	}
	if h.TableOffset < HeaderSize || h.TableOffset > h.TotalSize ||
		uint64(h.TableSize) > h.TotalSize-h.TableOffset {
		return fmt.Errorf("%w: file table out of range", ErrCorrupt)
	}
	return nil
}
