package fxbank

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Kind is the data type of a cooked property value. Kinds below
// [indirectKinds] are stored in a data bank and referenced by offset;
// the rest are written inline.
type Kind uint8

// Value kinds, in bank output order.
const (
	KindString Kind = iota
	KindVector3
	KindVector4
	KindFloatRange
	KindIntegerRange
	KindFixedFunction
	KindColorKeyFrame
	KindFloatKeyFrame
	// KindChannelTable holds per channel offsets of multi-channel ramps.
	KindChannelTable
	KindInteger
	KindFloat

	indirectKinds = KindChannelTable + 1
)

func (k Kind) indirect() bool { return k < indirectKinds }

func (k Kind) keyframes() bool { return k == KindColorKeyFrame || k == KindFloatKeyFrame }

// kindOf maps a property type to the kind of its cooked value.
func kindOf(t PropType) Kind {
	switch t {
	case PropColorRamp:
		return KindColorKeyFrame
	case PropCustomImage, PropCustomString, PropText:
		return KindString
	case PropFloatRangeSlider:
		return KindFloatRange
	case PropFloatSlider:
		return KindFloat
	case PropIntegerRangeSlider:
		return KindIntegerRange
	case PropRamp:
		return KindFloatKeyFrame
	case PropVector3:
		return KindVector3
	default:
		return KindInteger
	}
}

// serializedType is the property type id stored in component definitions.
func serializedType(t PropType) uint32 {
	const (
		integer       = 0
		integerRange  = 1
		colorKeyFrame = 3
		float         = 4
		floatRange    = 5
		floatKeyFrame = 7
		str           = 8
		vector3       = 10
	)
	switch t {
	case PropColorRamp:
		return colorKeyFrame
	case PropCustomImage, PropCustomString, PropText:
		return str
	case PropFloatRangeSlider:
		return floatRange
	case PropFloatSlider:
		return float
	case PropIntegerRangeSlider:
		return integerRange
	case PropRamp:
		return floatKeyFrame
	case PropVector3:
		return vector3
	default:
		return integer
	}
}

// maxBankOffset is the largest offset an IndirectOffset can hold.
const maxBankOffset = 1<<24 - 1

// IndirectOffset is an unresolved reference into a data bank: a 24-bit
// offset relative to the bank start and the bank kind in the top byte.
// It becomes an absolute file offset once every bank is placed.
type IndirectOffset uint32

func newIndirectOffset(k Kind, off int) (IndirectOffset, error) {
	if off < 0 || off > maxBankOffset {
		return 0, fmt.Errorf("%w: %d bytes", ErrBankOverflow, off)
	}
	return IndirectOffset(uint32(off) | uint32(k)<<24), nil //nolint:gosec // range checked
}

// Kind returns the bank the offset points into.
func (o IndirectOffset) Kind() Kind { return Kind(o >> 24) }

// Offset returns the offset relative to the bank start.
func (o IndirectOffset) Offset() uint32 { return uint32(o) & maxBankOffset }

type bankEntry struct {
	offset int
	size   int
}

// Bank is an append-only buffer of values of one kind. Adding bytes that
// match an earlier entry returns that entry's offset instead of growing
// the buffer.
type Bank struct {
	kind    Kind
	buf     []byte
	entries []bankEntry
	// Position is the bank's offset in the output, set when it is placed.
	Position uint32
}

func newBank(k Kind) *Bank { return &Bank{kind: k} }

// Len returns the size of the bank's buffer.
func (b *Bank) Len() int { return len(b.buf) }

// Bytes returns the bank's buffer.
func (b *Bank) Bytes() []byte { return b.buf }

// find returns the relative offset of an entry equal to p.
func (b *Bank) find(p []byte) (int, bool) {
	for _, e := range b.entries {
		if e.size == len(p) && bytes.Equal(p, b.buf[e.offset:e.offset+e.size]) {
			return e.offset, true
		}
	}
	return 0, false
}

// add appends p, or returns the offset of an equal entry. Strings are
// stored with a NUL terminator that is not part of the entry.
func (b *Bank) add(p []byte, terminate bool) (IndirectOffset, error) {
	if off, ok := b.find(p); ok {
		return newIndirectOffset(b.kind, off)
	}
	off := len(b.buf)
	b.entries = append(b.entries, bankEntry{offset: off, size: len(p)})
	b.buf = append(b.buf, p...)
	if terminate {
		b.buf = append(b.buf, 0)
	}
	return newIndirectOffset(b.kind, off)
}

// AddString interns s.
func (b *Bank) AddString(s string) (IndirectOffset, error) {
	return b.add([]byte(s), true)
}

// AddValue interns the cooked bytes of v. Keyframe banks take a single
// [RampChannel].
func (b *Bank) AddValue(v any) (IndirectOffset, error) {
	if b.kind == KindString {
		s, ok := v.(string)
		if !ok {
			return 0, fmt.Errorf("%w: string bank given %T", ErrEffect, v)
		}
		return b.AddString(s)
	}
	p, err := appendValue(nil, b.kind, v)
	if err != nil {
		return 0, err
	}
	return b.add(p, false)
}

// AddChannelTable interns a table of channel offsets.
func (b *Bank) AddChannelTable(offsets []IndirectOffset) (IndirectOffset, error) {
	p := make([]byte, 0, 4*len(offsets))
	for _, o := range offsets {
		p = binary.LittleEndian.AppendUint32(p, uint32(o))
	}
	return b.add(p, false)
}

// Offset returns the absolute offset of the string s. The bank must have
// been placed.
func (b *Bank) Offset(s string) (uint32, bool) {
	off, ok := b.find([]byte(s))
	if !ok {
		return 0, false
	}
	return b.Position + uint32(off), true //nolint:gosec // bank offsets fit in 24 bits
}

// banks holds one bank per indirect kind.
type banks [indirectKinds]*Bank

func newBanks() *banks {
	var bs banks
	for k := range bs {
		bs[k] = newBank(Kind(k))
	}
	return &bs
}

// resolve converts o to an absolute file offset.
func (bs *banks) resolve(o IndirectOffset) uint32 {
	return bs[o.Kind()].Position + o.Offset()
}

// fixupChannelTables rewrites every channel table entry to an absolute
// offset. It runs once, after the keyframe banks are placed and before
// the channel table itself is written.
func (bs *banks) fixupChannelTables() {
	buf := bs[KindChannelTable].buf
	for i := 0; i+4 <= len(buf); i += 4 {
		o := IndirectOffset(binary.LittleEndian.Uint32(buf[i:]))
		binary.LittleEndian.PutUint32(buf[i:], bs.resolve(o))
	}
}

// add interns value for one property and returns its offset. Multi
// channel ramps store each channel and then a table of the channels.
func (bs *banks) add(k Kind, value any) (IndirectOffset, error) {
	if !k.keyframes() {
		return bs[k].AddValue(value)
	}
	ramp, ok := value.(Ramp)
	if !ok {
		return 0, fmt.Errorf("%w: keyframe property given %T", ErrEffect, value)
	}
	if len(ramp.Channels) == 1 {
		return bs[k].AddValue(ramp.Channels[0])
	}
	offsets := make([]IndirectOffset, len(ramp.Channels))
	for i, ch := range ramp.Channels {
		o, err := bs[k].AddValue(ch)
		if err != nil {
			return 0, err
		}
		offsets[i] = o
	}
	return bs[KindChannelTable].AddChannelTable(offsets)
}
