package fxbank

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/meigma/cook/internal/assetpath"
)

// Bank file constants.
const (
	Magic      = "FxBk"
	Version    = 7
	HeaderSize = 96

	noLODCategory = math.MaxUint32
)

// FourCC returns the platform tag stored in the bank header.
func FourCC(p assetpath.Platform) uint32 {
	var s string
	switch p {
	case assetpath.IOS:
		s = "IOS "
	case assetpath.Android, assetpath.Linux:
		s = "NDRD"
	default:
		s = "Wn32"
	}
	return binary.LittleEndian.Uint32([]byte(s))
}

// Header is the fixed size bank header. Offsets are absolute.
type Header struct {
	Magic      [4]byte
	Version    uint32
	FourCC     uint32
	BankSize   uint32
	BankNameID uint32

	StringTable       uint32
	Vector3Table      uint32
	Vector4Table      uint32
	FloatRangeTable   uint32
	IntegerRangeTable uint32
	FixedFunction     uint32
	ColorChannelData  uint32
	FloatChannelData  uint32
	ChannelTable      uint32
	LODTable          uint32

	ComponentDefs       uint32
	ComponentDefsOffset uint32
	InputDefs           uint32
	InputDefsOffset     uint32
	LODCategoryOffset   uint32
	NameTOCOffset       uint32
	IDTOCOffset         uint32
	Effects             uint32
	EffectsOffset       uint32
}

// ReadHeader decodes the header at the start of a bank.
func ReadHeader(p []byte) (Header, error) {
	var h Header
	if len(p) < HeaderSize {
		return h, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBank, len(p))
	}
	copy(h.Magic[:], p)
	if string(h.Magic[:]) != Magic {
		return h, fmt.Errorf("%w: bad magic %q", ErrBank, h.Magic[:])
	}
	fields := h.fields()
	for i, f := range fields {
		*f = binary.LittleEndian.Uint32(p[4+4*i:])
	}
	return h, nil
}

func (h *Header) fields() []*uint32 {
	return []*uint32{
		&h.Version, &h.FourCC, &h.BankSize, &h.BankNameID,
		&h.StringTable, &h.Vector3Table, &h.Vector4Table, &h.FloatRangeTable,
		&h.IntegerRangeTable, &h.FixedFunction, &h.ColorChannelData, &h.FloatChannelData,
		&h.ChannelTable, &h.LODTable,
		&h.ComponentDefs, &h.ComponentDefsOffset, &h.InputDefs, &h.InputDefsOffset,
		&h.LODCategoryOffset, &h.NameTOCOffset, &h.IDTOCOffset, &h.Effects, &h.EffectsOffset,
	}
}

func (h *Header) appendTo(p []byte) []byte {
	p = append(p, h.Magic[:]...)
	for _, f := range h.fields() {
		p = binary.LittleEndian.AppendUint32(p, *f)
	}
	return p
}

// sanitize makes equal floats bit identical: every NaN becomes one
// canonical pattern and negative zero becomes zero.
func sanitize(f float32) uint32 {
	switch {
	case math.IsNaN(float64(f)):
		return 0xFFFFFFFE
	case f == 0:
		return 0
	default:
		return math.Float32bits(f)
	}
}

func appendFloat(p []byte, f float32) []byte {
	return binary.LittleEndian.AppendUint32(p, sanitize(f))
}

// appendValue appends the cooked bytes of a value of kind k.
func appendValue(p []byte, k Kind, v any) ([]byte, error) {
	switch k {
	case KindString:
		s, ok := v.(string)
		if ok {
			p = append(p, s...)
			return append(p, 0), nil
		}
	case KindVector3:
		if vec, ok := v.(Vector3); ok {
			for _, f := range vec {
				p = appendFloat(p, f)
			}
			return p, nil
		}
	case KindVector4:
		if vec, ok := v.(Vector4); ok {
			for _, f := range vec {
				p = appendFloat(p, f)
			}
			return p, nil
		}
	case KindFloatRange:
		if r, ok := v.(FloatRange); ok {
			return appendFloat(appendFloat(p, r[0]), r[1]), nil
		}
	case KindIntegerRange:
		if r, ok := v.(IntegerRange); ok {
			p = binary.LittleEndian.AppendUint32(p, uint32(r[0])) //nolint:gosec // bit pattern
			return binary.LittleEndian.AppendUint32(p, uint32(r[1])), nil //nolint:gosec // bit pattern
		}
	case KindColorKeyFrame, KindFloatKeyFrame:
		if ch, ok := v.(RampChannel); ok {
			return appendKeys(p, k, resample(ch, k == KindColorKeyFrame)), nil
		}
	case KindInteger:
		if i, ok := v.(int32); ok {
			return binary.LittleEndian.AppendUint32(p, uint32(i)), nil //nolint:gosec // bit pattern
		}
	case KindFloat:
		if f, ok := v.(float32); ok {
			return appendFloat(p, f), nil
		}
	}
	return nil, fmt.Errorf("%w: cannot write %T as kind %d", ErrEffect, v, k)
}

// appendKeys writes a keyframe channel. Float channels lead with their
// interpolation type, which is always linear.
func appendKeys(p []byte, k Kind, keys []Keyframe) []byte {
	if k == KindFloatKeyFrame {
		p = binary.LittleEndian.AppendUint32(p, 0)
	}
	p = binary.LittleEndian.AppendUint32(p, uint32(len(keys))) //nolint:gosec // small counts
	for _, key := range keys {
		p = appendFloat(p, key.Time)
		if k == KindFloatKeyFrame {
			p = appendFloat(p, key.Value)
			continue
		}
		c := key.RGB&^(0xff<<24) | Color(uint8(int32(key.Value)))<<24 //nolint:gosec // alpha byte
		p = binary.LittleEndian.AppendUint32(p, uint32(c))
	}
	return p
}

// writer is an output buffer with back-patched offsets.
type writer struct{ buf []byte }

func (w *writer) pos() uint32 { return uint32(len(w.buf)) } //nolint:gosec // banks are far below 4 GiB

func (w *writer) u32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *writer) f32(f float32) { w.u32(math.Float32bits(f)) }

// placeholder writes a zero to be patched by fixup.
func (w *writer) placeholder() uint32 {
	at := w.pos()
	w.u32(0)
	return at
}

// fixup stores the current position at at.
func (w *writer) fixup(at uint32) {
	binary.LittleEndian.PutUint32(w.buf[at:], w.pos())
}

func (w *writer) align4() {
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// encoder lays out one effect bank.
type encoder struct {
	schema *Schema
	effect *Effect
	banks  *banks

	// indirect maps a *PropDef or *Prop to its value's bank offset.
	indirect map[any]IndirectOffset
}

// Encode cooks effect into the binary bank format of the schema's
// platform.
func Encode(schema *Schema, effect *Effect) ([]byte, error) {
	e := &encoder{
		schema:   schema,
		effect:   effect,
		banks:    newBanks(),
		indirect: make(map[any]IndirectOffset),
	}
	if err := e.fill(); err != nil {
		return nil, err
	}
	return e.write()
}

func (e *encoder) addIndirect(key any, t PropType, value any) error {
	k := kindOf(t)
	if !k.indirect() {
		return nil
	}
	o, err := e.banks.add(k, value)
	if err != nil {
		return err
	}
	e.indirect[key] = o
	return nil
}

// fill interns every string and indirect value in output order.
func (e *encoder) fill() error {
	strs := e.banks[KindString]
	add := func(s string) error {
		_, err := strs.AddString(s)
		return err
	}
	if err := add(""); err != nil {
		return err
	}
	if _, err := e.banks[KindVector3].AddValue(Vector3{}); err != nil {
		return err
	}
	if _, err := e.banks[KindVector4].AddValue(Vector4{}); err != nil {
		return err
	}
	if err := add(e.effect.BankName); err != nil {
		return err
	}
	for ci := range e.schema.Components {
		c := &e.schema.Components[ci]
		if err := add(c.Class); err != nil {
			return err
		}
		for pi := range c.Props {
			p := &c.Props[pi]
			if err := add(p.FullName); err != nil {
				return err
			}
			if err := e.addIndirect(p, p.Type, p.Default); err != nil {
				return fmt.Errorf("%s.%s: %w", c.Class, p.FullName, err)
			}
		}
	}
	for _, ph := range e.schema.Phases {
		if err := add(ph.Name); err != nil {
			return err
		}
	}
	if err := add(e.effect.Name); err != nil {
		return err
	}
	for _, p := range e.effect.nonDefault {
		if err := e.addIndirect(p, p.Def.Type, p.Value); err != nil {
			return fmt.Errorf("%s: %w", p.Def.FullName, err)
		}
	}
	return nil
}

func (e *encoder) str(w *writer, s string) error {
	off, ok := e.banks[KindString].Offset(s)
	if !ok {
		return fmt.Errorf("%w: %q not in string table", ErrEffect, s)
	}
	w.u32(off)
	return nil
}

func (e *encoder) value(w *writer, key any, t PropType, v any) error {
	k := kindOf(t)
	if k.indirect() {
		o, ok := e.indirect[key]
		if !ok {
			return fmt.Errorf("%w: value was never added to a bank", ErrEffect)
		}
		w.u32(e.banks.resolve(o))
		return nil
	}
	p, err := appendValue(w.buf, k, v)
	if err != nil {
		return err
	}
	w.buf = p
	return nil
}

func propKey(class string, id uuid.UUID) string { return class + id.String() }

func (e *encoder) write() ([]byte, error) {
	h := Header{Version: Version, FourCC: FourCC(e.schema.Platform)}
	copy(h.Magic[:], Magic)
	w := &writer{buf: make([]byte, HeaderSize, 4096)}

	for k := KindString; k < KindChannelTable; k++ {
		e.banks[k].Position = w.pos()
		w.buf = append(w.buf, e.banks[k].Bytes()...)
		w.align4()
	}
	e.banks.fixupChannelTables()
	e.banks[KindChannelTable].Position = w.pos()
	w.buf = append(w.buf, e.banks[KindChannelTable].Bytes()...)
	w.align4()

	h.LODTable = w.pos()
	h.ComponentDefs = uint32(len(e.schema.Components)) //nolint:gosec // small counts
	h.ComponentDefsOffset = w.pos()
	compOffsets := make(map[string]uint32, len(e.schema.Components))
	propOffsets := make(map[string]uint32)
	for ci := range e.schema.Components {
		c := &e.schema.Components[ci]
		compOffsets[c.Class] = w.pos()
		if err := e.str(w, c.Class); err != nil {
			return nil, err
		}
		w.u32(uint32(len(c.Props))) //nolint:gosec // small counts
		for pi := range c.Props {
			p := &c.Props[pi]
			propOffsets[propKey(c.Class, p.ID)] = w.pos()
			if err := e.str(w, p.FullName); err != nil {
				return nil, err
			}
			w.u32(serializedType(p.Type))
			var flags uint32
			if kindOf(p.Type).keyframes() {
				flags = uint32(min(max(len(p.Channels), 1)-1, 63)) //nolint:gosec // capped
			}
			w.u32(flags)
			if err := e.value(w, p, p.Type, p.Default); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", c.Class, p.FullName, err)
			}
		}
	}

	h.InputDefsOffset = w.pos()
	h.LODCategoryOffset = w.pos()

	// One effect per bank, so both tables of contents hold one entry
	// pointing just past themselves.
	h.NameTOCOffset = w.pos()
	effectOffset := w.pos() + 16
	if err := e.str(w, e.effect.Name); err != nil {
		return nil, err
	}
	w.u32(effectOffset)
	h.IDTOCOffset = w.pos()
	w.u32(0)
	w.u32(effectOffset)

	h.Effects = 1
	h.EffectsOffset = w.pos()
	if err := e.str(w, e.effect.Name); err != nil {
		return nil, err
	}
	w.u32(0)
	w.f32(e.effect.Duration())
	w.u32(noLODCategory)
	w.u32(0)
	inputs := w.placeholder()
	w.u32(0)
	w.u32(uint32(len(e.effect.Phases))) //nolint:gosec // small counts
	phases := w.placeholder()
	w.u32(uint32(len(e.effect.packed))) //nolint:gosec // small counts
	comps := w.placeholder()

	w.fixup(inputs)
	w.fixup(phases)
	for _, ph := range e.effect.Phases {
		if err := e.str(w, e.phaseName(ph.DefinitionID)); err != nil {
			return nil, err
		}
		w.f32(ph.Duration)
		w.u32(uint32(ph.PlayCount)) //nolint:gosec // bit pattern
	}

	w.fixup(comps)
	next := 0
	for _, pc := range e.effect.packed {
		c := pc.component
		off, ok := compOffsets[c.Class]
		if !ok {
			return nil, fmt.Errorf("%w: unknown component class %q", ErrEffect, c.Class)
		}
		w.u32(off)
		w.f32(c.Start)
		w.f32(c.End)
		w.u32(pc.trackGroup)
		w.u32(pc.nonDefault)
		props := w.placeholder()
		w.u32(0)
		compInputs := w.placeholder()
		w.u32(0)
		w.u32(0)

		if pc.nonDefault > 0 {
			w.fixup(props)
			for _, p := range e.effect.nonDefault[next : next+int(pc.nonDefault)] {
				poff, ok := propOffsets[propKey(c.Class, p.ID)]
				if !ok {
					return nil, fmt.Errorf("%w: %s::%s not found", ErrEffect, c.Class, p.ID)
				}
				w.u32(poff)
				if err := e.value(w, p, p.Def.Type, p.Value); err != nil {
					return nil, fmt.Errorf("%s.%s: %w", c.Class, p.Def.FullName, err)
				}
			}
			next += int(pc.nonDefault)
		}
		w.fixup(compInputs)
	}

	h.BankSize = w.pos()
	nameID, ok := e.banks[KindString].Offset(e.effect.BankName)
	if !ok {
		return nil, fmt.Errorf("%w: %q not in string table", ErrEffect, e.effect.BankName)
	}
	h.BankNameID = nameID
	h.StringTable = e.banks[KindString].Position
	h.Vector3Table = e.banks[KindVector3].Position
	h.Vector4Table = e.banks[KindVector4].Position
	h.FloatRangeTable = e.banks[KindFloatRange].Position
	h.IntegerRangeTable = e.banks[KindIntegerRange].Position
	h.FixedFunction = e.banks[KindFixedFunction].Position
	h.ColorChannelData = e.banks[KindColorKeyFrame].Position
	h.FloatChannelData = e.banks[KindFloatKeyFrame].Position
	h.ChannelTable = e.banks[KindChannelTable].Position
	h.appendTo(w.buf[:0])
	return w.buf, nil
}

func (e *encoder) phaseName(id uuid.UUID) string {
	for _, ph := range e.schema.Phases {
		if ph.ID == id {
			return ph.Name
		}
	}
	return ""
}
