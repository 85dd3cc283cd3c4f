package fxbank

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cook/internal/assetpath"
)

const (
	phaseBirth = "0a7c4d0e-0000-4000-8000-000000000001"
	propRate   = "0a7c4d0e-0000-4000-8000-000000000010"
	propSpeed  = "0a7c4d0e-0000-4000-8000-000000000011"
	propCurve  = "0a7c4d0e-0000-4000-8000-000000000012"
	propLabel  = "0a7c4d0e-0000-4000-8000-000000000013"
	propSize   = "0a7c4d0e-0000-4000-8000-000000000020"

	typeFloat  = "1a0cc0c6-9f3f-4e24-aa3e-115c1dd2d798"
	typeInt    = "999607c1-f678-4767-9b93-2f54e2924642"
	typeRamp   = "da8c974a-fe5b-415e-ae28-56c76d31094f"
	typeText   = "f71ff166-5e06-47f4-a843-e0f9f08de542"
	typeVector = "321d4c50-4a05-45f4-a356-ec011b49c01c"

	platformPC = "38C3409D-8620-449a-ABE7-824D99AF44CB"
)

func prop(name, id, typeID, data string) string {
	return `<property name="` + name + `" id="` + id + `">` +
		`<definition type="` + name + `Type" typeid="` + typeID + `">` + data + `</definition></property>`
}

func datum(value string) string {
	return `<data><datum platform="" value="` + value + `"/></data>`
}

const rampDefault = `<channels><channel name="x" id="0a7c4d0e-0000-4000-8000-0000000000c1"/>` +
	`<channel name="y" id="0a7c4d0e-0000-4000-8000-0000000000c2"/></channels>` +
	`<data><datum platform=""><rampchanneldata>` +
	`<rampchannel id="0a7c4d0e-0000-4000-8000-0000000000c1" type="Linear"><keyframes>` +
	`<keyframe time="0" value="0"/><keyframe time="1" value="1"/></keyframes></rampchannel>` +
	`<rampchannel id="0a7c4d0e-0000-4000-8000-0000000000c2" type="Linear"><keyframes>` +
	`<keyframe time="0" value="1"/><keyframe time="1" value="0"/></keyframes></rampchannel>` +
	`</rampchanneldata></datum></data>`

func schemaXML(extraComponents string) string {
	return `<root version="3">` +
		`<phases><object><data id="` + phaseBirth + `" name="Birth" initialduration="2"/></object></phases>` +
		`<components>` +
		`<component name="Emitter"><properties>` +
		prop("Rate", propRate, typeFloat, datum("1.5")) +
		prop("Speed", propSpeed, typeInt, datum("4")) +
		`<property name="Curve" id="`+propCurve+`"><definition type="Ramp" typeid="`+typeRamp+`" keyframetype="FloatKeyframe">`+rampDefault+`</definition></property>` +
		prop("Label", propLabel, typeText, datum("spark")) +
		`<propertygroup name="root"><children>` +
		`<propertygroup name="Motion"><properties><property id="` + propSpeed + `"/></properties>` +
		`<children><propertygroup name="Shape"><properties><property id="` + propCurve + `"/></properties></propertygroup></children>` +
		`</propertygroup></children></propertygroup>` +
		`</properties></component>` +
		`<component name="Sprite"><properties>` +
		prop("Size", propSize, typeVector, datum("1,2,3")) +
		`</properties></component>` +
		extraComponents +
		`</components></root>`
}

func loadTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := LoadSchema(strings.NewReader(schemaXML("")), assetpath.PC)
	require.NoError(t, err)
	return s
}

const effectXML = `<effect id="0a7c4d0e-0000-4000-8000-0000000000e1" version="2">` +
	`<phases><object><data definitionid="` + phaseBirth + `" duration="2" playcount="3"/></object></phases>` +
	`<trackgroups><trackgroup name="main">` +
	`<track name="sparks"><component class="Emitter" start="0.5" end="3">` +
	`<properties><property id="` + propRate + `"><data><datum platform="" value="2.5"/></data></property>` +
	`<property id="` + propSpeed + `"><data><datum platform="" value="4"/></data></property>` +
	`<property id="0a7c4d0e-0000-4000-8000-0000000000ff"><data><datum platform="" value="9"/></data></property>` +
	`</properties></component>` +
	`<component class="Sprite" start="0" end="1"/></track>` +
	`<track name="hidden" muted="true"><component class="Emitter" start="0" end="1"/></track>` +
	`</trackgroup></trackgroups></effect>`

func loadTestEffect(t *testing.T, s *Schema) *Effect {
	t.Helper()
	e, err := LoadEffect(s, "Authored/Effects/Fx_Test", strings.NewReader(effectXML))
	require.NoError(t, err)
	return e
}

func TestLoadSchema(t *testing.T) {
	t.Parallel()
	s := loadTestSchema(t)

	assert.Equal(t, "3", s.Version)
	require.Len(t, s.Phases, 1)
	assert.Equal(t, "Birth", s.Phases[0].Name)
	assert.InDelta(t, 2.0, s.Phases[0].InitialDuration, 1e-6)
	assert.Equal(t, int32(1), s.Phases[0].InitialPlays)

	emitter, ok := s.Component("Emitter")
	require.True(t, ok)
	var names []string
	for _, p := range emitter.Props {
		names = append(names, p.FullName)
	}
	assert.Equal(t, []string{"Name", "Rate", "Motion.Speed", "Motion.Shape.Curve", "Label"}, names)

	rate, ok := s.Prop(uuid.MustParse(propRate))
	require.True(t, ok)
	assert.Equal(t, PropFloatSlider, rate.Type)
	assert.Equal(t, float32(1.5), rate.Default)

	curve, ok := s.Prop(uuid.MustParse(propCurve))
	require.True(t, ok)
	assert.Equal(t, KeyframeFloat, curve.KeyframeType)
	assert.Len(t, curve.Channels, 2)
	require.IsType(t, Ramp{}, curve.Default)
	assert.Len(t, curve.Default.(Ramp).Channels, 2)

	size, ok := s.Prop(uuid.MustParse(propSize))
	require.True(t, ok)
	assert.Equal(t, Vector3{1, 2, 3}, size.Default)

	name, ok := s.Prop(nameID)
	require.True(t, ok)
	assert.Equal(t, "Component", name.Default)

	_, ok = s.Component("Missing")
	assert.False(t, ok)
}

func TestLoadSchemaErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		extra string
		want  error
	}{
		{
			name:  "duplicate class",
			extra: `<component name="Sprite"><properties/></component>`,
			want:  ErrDuplicateClass,
		},
		{
			name:  "duplicate property id",
			extra: `<component name="Other"><properties>` + prop("Rate", propRate, typeFloat, datum("1")) + `</properties></component>`,
			want:  ErrDuplicateProperty,
		},
		{
			name:  "unknown property type",
			extra: `<component name="Other"><properties>` + prop("X", uuid.NewString(), uuid.NewString(), datum("1")) + `</properties></component>`,
			want:  ErrSchema,
		},
		{
			name:  "missing datum",
			extra: `<component name="Other"><properties>` + prop("X", uuid.NewString(), typeFloat, "") + `</properties></component>`,
			want:  ErrSchema,
		},
		{
			name: "input property",
			extra: `<component name="Other"><properties><property name="X" id="` + uuid.NewString() + `">` +
				`<definition typeid="` + typeFloat + `" acceptsinput="true">` + datum("1") + `</definition></property></properties></component>`,
			want: ErrSchema,
		},
		{
			name: "ramp without channels",
			extra: `<component name="Other"><properties><property name="X" id="` + uuid.NewString() + `">` +
				`<definition typeid="` + typeRamp + `">` + datum("") + `</definition></property></properties></component>`,
			want: ErrSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadSchema(strings.NewReader(schemaXML(tt.extra)), assetpath.PC)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("inputs", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSchema(strings.NewReader(`<root><inputs><input/></inputs></root>`), assetpath.PC)
		require.ErrorIs(t, err, ErrSchema)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, err := LoadSchema(strings.NewReader(`<root>`), assetpath.PC)
		require.ErrorIs(t, err, ErrSchema)
	})
}

func TestLoadSchemaPlatformDatum(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	data := `<data><datum platform="" value="1"/><datum platform="` + platformPC + `" value="2"/>` +
		`<datum value="3"/></data>`
	doc := `<root><components><component name="C"><properties>` +
		prop("X", id, typeInt, data) + `</properties></component></components></root>`

	tests := []struct {
		platform assetpath.Platform
		want     int32
	}{
		{assetpath.PC, 2},
		{assetpath.IOS, 1},
	}
	for _, tt := range tests {
		t.Run(tt.platform.String(), func(t *testing.T) {
			t.Parallel()
			s, err := LoadSchema(strings.NewReader(doc), tt.platform)
			require.NoError(t, err)
			p, ok := s.Prop(uuid.MustParse(id))
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Default)
		})
	}
}

func TestLoadEffect(t *testing.T) {
	t.Parallel()
	e := loadTestEffect(t, loadTestSchema(t))

	assert.Equal(t, "Fx_Test", e.BankName)
	assert.Equal(t, "fx_test", e.Name)
	require.Len(t, e.Phases, 1)
	assert.Equal(t, int32(3), e.Phases[0].PlayCount)
	assert.InDelta(t, 3.0, e.Duration(), 1e-6)

	// The unknown property is dropped and the muted track is not packed.
	require.Len(t, e.TrackGroups, 1)
	assert.Len(t, e.TrackGroups[0].Tracks[0].Components[0].Props, 2)
	require.Len(t, e.packed, 2)
	assert.Equal(t, uint32(1), e.packed[0].nonDefault)
	assert.Equal(t, uint32(0), e.packed[1].nonDefault)
	require.Len(t, e.nonDefault, 1)
	assert.Equal(t, float32(2.5), e.nonDefault[0].Value)
}

func TestBankDedup(t *testing.T) {
	t.Parallel()
	b := newBank(KindString)
	a1, err := b.AddString("alpha")
	require.NoError(t, err)
	b1, err := b.AddString("beta")
	require.NoError(t, err)
	n := b.Len()
	a2, err := b.AddString("alpha")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b1)
	assert.Equal(t, n, b.Len())
	assert.Equal(t, "alpha\x00beta\x00", string(b.Bytes()))
	assert.Equal(t, KindString, b1.Kind())
	assert.Equal(t, uint32(6), b1.Offset())

	v := newBank(KindVector3)
	o1, err := v.AddValue(Vector3{1, 2, 3})
	require.NoError(t, err)
	o2, err := v.AddValue(Vector3{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, o1, o2)
	assert.Equal(t, 12, v.Len())

	_, err = v.AddValue("not a vector")
	require.ErrorIs(t, err, ErrEffect)
}

func TestIndirectOffsetOverflow(t *testing.T) {
	t.Parallel()
	o, err := newIndirectOffset(KindFloatKeyFrame, maxBankOffset)
	require.NoError(t, err)
	assert.Equal(t, KindFloatKeyFrame, o.Kind())
	assert.Equal(t, uint32(maxBankOffset), o.Offset())

	_, err = newIndirectOffset(KindString, maxBankOffset+1)
	require.ErrorIs(t, err, ErrBankOverflow)
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, uint32(0xFFFFFFFE), sanitize(float32(math.NaN())))
	assert.Equal(t, uint32(0), sanitize(float32(math.Copysign(0, -1))))
	assert.Equal(t, math.Float32bits(1.5), sanitize(1.5))
}

func TestResample(t *testing.T) {
	t.Parallel()
	spline := RampChannel{
		Type: RampSpline,
		Keyframes: []Keyframe{
			{Time: 0, Value: 0, RGB: rgba(0, 0, 0, 0)},
			{Time: 1, Value: 200, RGB: rgba(200, 100, 50, 0)},
			{Time: 2, Value: 100, RGB: rgba(200, 100, 50, 0)},
		},
		Handles: make([]ControlPoints, 3),
	}

	keys := resample(spline, false)
	require.Len(t, keys, sampleCount)
	assert.InDelta(t, 0, keys[0].Time, 1e-6)
	assert.InDelta(t, 2, keys[sampleCount-1].Time, 1e-6)
	assert.InDelta(t, 100, keys[sampleCount-1].Value, 1e-4)
	for i := 1; i < len(keys); i++ {
		assert.GreaterOrEqual(t, keys[i].Time, keys[i-1].Time, "sample %d", i)
		assert.Equal(t, Color(0), keys[i].RGB)
	}
	// Interior samples land on the fixed runtime time steps.
	assert.InDelta(t, 2.0/31, keys[1].Time, 1e-3)

	colors := resample(spline, true)
	require.Len(t, colors, sampleCount)
	for _, k := range colors {
		assert.GreaterOrEqual(t, k.Value, float32(0))
		assert.LessOrEqual(t, k.Value, float32(255))
	}
	assert.Equal(t, rgba(200, 100, 50, 0), colors[sampleCount-1].RGB)

	linear := spline
	linear.Type = RampLinear
	assert.Equal(t, linear.Keyframes, resample(linear, false))

	short := RampChannel{Type: RampSpline, Keyframes: spline.Keyframes[:1], Handles: spline.Handles[:1]}
	assert.Equal(t, short.Keyframes, resample(short, false))
}

func TestFourCC(t *testing.T) {
	t.Parallel()
	tests := []struct {
		platform assetpath.Platform
		want     string
	}{
		{assetpath.PC, "Wn32"},
		{assetpath.IOS, "IOS "},
		{assetpath.Android, "NDRD"},
		{assetpath.Linux, "NDRD"},
	}
	for _, tt := range tests {
		b := binary.LittleEndian.AppendUint32(nil, FourCC(tt.platform))
		assert.Equal(t, tt.want, string(b), tt.platform.String())
	}
}

func u32(p []byte, off uint32) uint32 { return binary.LittleEndian.Uint32(p[off:]) }

func cstring(p []byte, off uint32) string {
	end := off
	for p[end] != 0 {
		end++
	}
	return string(p[off:end])
}

func TestEncode(t *testing.T) {
	t.Parallel()
	s := loadTestSchema(t)
	e := loadTestEffect(t, s)

	out, err := Encode(s, e)
	require.NoError(t, err)

	h, err := ReadHeader(out)
	require.NoError(t, err)
	assert.Equal(t, uint32(Version), h.Version)
	assert.Equal(t, FourCC(assetpath.PC), h.FourCC)
	assert.Equal(t, uint32(len(out)), h.BankSize)
	assert.Equal(t, "Fx_Test", cstring(out, h.BankNameID))

	tables := []uint32{
		h.StringTable, h.Vector3Table, h.Vector4Table, h.FloatRangeTable, h.IntegerRangeTable,
		h.FixedFunction, h.ColorChannelData, h.FloatChannelData, h.ChannelTable, h.LODTable,
	}
	assert.Equal(t, uint32(HeaderSize), h.StringTable)
	for i, off := range tables {
		assert.Zero(t, off%4, "table %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, off, tables[i-1], "table %d", i)
		}
	}
	assert.Equal(t, "", cstring(out, h.StringTable))

	assert.Equal(t, uint32(2), h.ComponentDefs)
	assert.Equal(t, h.LODTable, h.ComponentDefsOffset)
	assert.Equal(t, "Emitter", cstring(out, u32(out, h.ComponentDefsOffset)))
	assert.Equal(t, uint32(5), u32(out, h.ComponentDefsOffset+4))

	// The name table of contents points at the effect record.
	assert.Equal(t, "fx_test", cstring(out, u32(out, h.NameTOCOffset)))
	assert.Equal(t, h.EffectsOffset, u32(out, h.NameTOCOffset+4))
	assert.Equal(t, uint32(0), u32(out, h.IDTOCOffset))
	assert.Equal(t, h.EffectsOffset, u32(out, h.IDTOCOffset+4))

	eff := h.EffectsOffset
	assert.Equal(t, uint32(1), h.Effects)
	assert.Equal(t, float32(3), math.Float32frombits(u32(out, eff+8)))
	assert.Equal(t, uint32(math.MaxUint32), u32(out, eff+12))
	assert.Equal(t, uint32(1), u32(out, eff+28), "phases")
	phases := u32(out, eff+32)
	assert.Equal(t, "Birth", cstring(out, u32(out, phases)))
	assert.Equal(t, float32(2), math.Float32frombits(u32(out, phases+4)))
	assert.Equal(t, uint32(3), u32(out, phases+8))

	assert.Equal(t, uint32(2), u32(out, eff+36), "components")
	comp := u32(out, eff+40)
	assert.Equal(t, h.ComponentDefsOffset, u32(out, comp))
	assert.Equal(t, float32(0.5), math.Float32frombits(u32(out, comp+4)))
	assert.Equal(t, uint32(1), u32(out, comp+16), "non-default properties")
	props := u32(out, comp+20)
	assert.Equal(t, "Rate", cstring(out, u32(out, u32(out, props))))
	assert.Equal(t, float32(2.5), math.Float32frombits(u32(out, props+4)))

	again, err := Encode(s, e)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestEncodeChannelTable(t *testing.T) {
	t.Parallel()
	s := loadTestSchema(t)
	out, err := Encode(s, loadTestEffect(t, s))
	require.NoError(t, err)
	h, err := ReadHeader(out)
	require.NoError(t, err)

	// The two channel Curve default is the only channel table.
	require.Equal(t, uint32(8), h.LODTable-h.ChannelTable)
	for i := range uint32(2) {
		ch := u32(out, h.ChannelTable+4*i)
		assert.GreaterOrEqual(t, ch, h.FloatChannelData)
		assert.Less(t, ch, h.ChannelTable)
		assert.Equal(t, uint32(0), u32(out, ch), "linear")
		assert.Equal(t, uint32(2), u32(out, ch+4), "keys")
	}
}

func TestEncodeUnknownClass(t *testing.T) {
	t.Parallel()
	s := loadTestSchema(t)
	doc := `<effect><trackgroups><trackgroup><track><component class="Nope"/></track></trackgroup></trackgroups></effect>`
	e, err := LoadEffect(s, "x", strings.NewReader(doc))
	require.NoError(t, err)
	_, err = Encode(s, e)
	require.ErrorIs(t, err, ErrEffect)
}

func TestReadHeaderErrors(t *testing.T) {
	t.Parallel()
	_, err := ReadHeader([]byte("FxBk"))
	require.ErrorIs(t, err, ErrBank)
	_, err = ReadHeader(make([]byte, HeaderSize))
	require.ErrorIs(t, err, ErrBank)
}
