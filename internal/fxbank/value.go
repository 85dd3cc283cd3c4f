package fxbank

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// PropType is the editor control type of a property.
type PropType int

// Property types.
const (
	PropUnknown PropType = iota
	PropBoolean
	PropColorRamp
	PropCustomImage
	PropCustomString
	PropDropDownList
	PropFloatRangeSlider
	PropFloatSlider
	PropIntegerRangeSlider
	PropIntegerSlider
	PropRamp
	PropText
	PropVector3
)

var propTypes = map[uuid.UUID]PropType{
	uuid.MustParse("fcf65cf3-39b6-4bf9-9bd7-b941a6460519"): PropBoolean,
	uuid.MustParse("22c6b703-4b0e-4944-9d37-43fd436f9c71"): PropColorRamp,
	uuid.MustParse("2485e9e1-e864-48f1-8e48-fbd51b3994f0"): PropCustomImage,
	uuid.MustParse("2afe2610-12a0-4301-a438-102a5d982d75"): PropCustomString,
	uuid.MustParse("fbb27f2a-c942-4840-8df1-0372bb898477"): PropDropDownList,
	uuid.MustParse("497241d5-8dcf-49f4-9f77-596b3f3c09a1"): PropFloatRangeSlider,
	uuid.MustParse("1a0cc0c6-9f3f-4e24-aa3e-115c1dd2d798"): PropFloatSlider,
	uuid.MustParse("e449ac44-e15d-42ea-bc30-7892c77b42d4"): PropIntegerRangeSlider,
	uuid.MustParse("999607c1-f678-4767-9b93-2f54e2924642"): PropIntegerSlider,
	uuid.MustParse("da8c974a-fe5b-415e-ae28-56c76d31094f"): PropRamp,
	uuid.MustParse("f71ff166-5e06-47f4-a843-e0f9f08de542"): PropText,
	uuid.MustParse("321d4c50-4a05-45f4-a356-ec011b49c01c"): PropVector3,
}

// ConstraintType is the kind of limit a constraint places on a property.
type ConstraintType int

// Constraint types.
const (
	ConstraintUnknown ConstraintType = iota
	ConstraintMaximumChannels
	ConstraintMaximumFloat
	ConstraintMaximumInteger
	ConstraintMinimumFloat
	ConstraintMinimumInteger
)

var constraintTypes = map[uuid.UUID]ConstraintType{
	uuid.MustParse("93b62b05-582c-4379-925b-8cfc78962b9a"): ConstraintMaximumChannels,
	uuid.MustParse("dac71a24-ca97-40dd-93b5-306579b73197"): ConstraintMaximumFloat,
	uuid.MustParse("0232292f-143c-41cc-8a50-6c8da0951cbd"): ConstraintMaximumInteger,
	uuid.MustParse("4944057f-9671-4e17-b3ae-f65b0bacff41"): ConstraintMinimumFloat,
	uuid.MustParse("1a0ec3ec-dcdc-4fcd-b947-f9daac975f53"): ConstraintMinimumInteger,
}

// KeyframeType is the keyframe flavour of a ramp property.
type KeyframeType int

// Keyframe types.
const (
	KeyframeNone KeyframeType = iota
	KeyframeColor
	KeyframeFloat
)

// RampType selects how a ramp channel interpolates between keyframes.
type RampType int

// Ramp types.
const (
	RampLinear RampType = iota
	RampSpline
)

// Color is a packed ARGB color: blue in the low byte, alpha in the high.
type Color uint32

func (c Color) b() uint8 { return uint8(c) }
func (c Color) g() uint8 { return uint8(c >> 8) }
func (c Color) r() uint8 { return uint8(c >> 16) }
func (c Color) a() uint8 { return uint8(c >> 24) }

func rgba(r, g, b, a uint8) Color {
	return Color(b) | Color(g)<<8 | Color(r)<<16 | Color(a)<<24
}

// Keyframe is one ramp key. Color ramps keep alpha in Value and the color
// with zero alpha in RGB.
type Keyframe struct {
	Time  float32
	Value float32
	RGB   Color
}

// ControlPoint is a spline tangent handle, stored as an offset from its
// keyframe. Handles that were never edited sit at the segment midpoint.
type ControlPoint struct {
	TimeOffset  float32
	ValueOffset float32
	Changed     bool
}

func (cp ControlPoint) start(a, b vec2) vec2 {
	if cp.Changed {
		v := vec2{a.x + cp.TimeOffset, a.y + cp.ValueOffset}
		v.x = min(v.x, b.x)
		return v
	}
	mid := (b.x - a.x) / 2
	return vec2{a.x + mid, a.y}
}

func (cp ControlPoint) end(a, b vec2) vec2 {
	if cp.Changed {
		v := vec2{b.x + cp.TimeOffset, b.y + cp.ValueOffset}
		v.x = max(v.x, a.x)
		return v
	}
	mid := (b.x - a.x) / 2
	return vec2{b.x - mid, b.y}
}

// ControlPoints are the handles on either side of a spline keyframe.
type ControlPoints struct {
	Start ControlPoint
	End   ControlPoint
}

// RampChannel is one curve of a ramp property.
type RampChannel struct {
	ID        uuid.UUID
	Type      RampType
	Keyframes []Keyframe
	// Handles has one entry per keyframe for spline channels.
	Handles []ControlPoints
}

// Equal reports whether two channels are identical.
func (c RampChannel) Equal(o RampChannel) bool {
	return c.ID == o.ID && c.Type == o.Type &&
		slices.Equal(c.Keyframes, o.Keyframes) &&
		slices.Equal(c.Handles, o.Handles)
}

// Ramp is the value of a ramp or color ramp property.
type Ramp struct {
	Channels []RampChannel
}

// Equal reports whether two ramps are identical.
func (r Ramp) Equal(o Ramp) bool {
	return slices.EqualFunc(r.Channels, o.Channels, RampChannel.Equal)
}

// Property values. Booleans, drop-down lists and integer sliders are
// int32; float sliders are float32; text and images are string.
type (
	FloatRange   [2]float32
	IntegerRange [2]int32
	Vector3      [3]float32
	Vector4      [4]float32
)

// valuesEqual compares two values of the same property type. Floats use
// IEEE equality, so NaN never matches.
func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case Ramp:
		bv, ok := b.(Ramp)
		return ok && av.Equal(bv)
	default:
		return a == b
	}
}

func loadKeyframe(t PropType, e *element) Keyframe {
	k := Keyframe{Time: e.attrFloat("time", 0)}
	if t == PropColorRamp {
		c := Color(uint32(e.attrInt("value", 0))) //nolint:gosec // ARGB bit pattern
		k.Value = float32(c.a())
		k.RGB = c &^ (0xff << 24)
	} else {
		k.Value = e.attrFloat("value", 0)
	}
	return k
}

func loadControlPoint(e *element) ControlPoint {
	return ControlPoint{
		TimeOffset:  e.attrFloat("time", 0),
		ValueOffset: e.attrFloat("value", 0),
		Changed:     e.attrBool("changed"),
	}
}

func loadRampChannel(t PropType, e *element) RampChannel {
	ch := RampChannel{ID: e.attrUUID("id"), Type: RampLinear}
	if strings.EqualFold(e.attr("type"), "Spline") {
		ch.Type = RampSpline
	}
	for _, k := range e.selectAll("keyframes/keyframe") {
		ch.Keyframes = append(ch.Keyframes, loadKeyframe(t, k))
		if ch.Type == RampSpline {
			ch.Handles = append(ch.Handles, ControlPoints{
				Start: loadControlPoint(k.selectOne("startcp")),
				End:   loadControlPoint(k.selectOne("endcp")),
			})
		}
	}
	return ch
}

// loadValue reads the value attribute, or the ramp channels, of a datum.
func loadValue(t PropType, e *element) (any, error) {
	s := e.attr("value")
	switch t {
	case PropBoolean:
		if parseBool(s) {
			return int32(1), nil
		}
		return int32(0), nil
	case PropDropDownList, PropIntegerSlider:
		return e.attrInt("value", 0), nil
	case PropFloatSlider:
		return e.attrFloat("value", 0), nil
	case PropCustomImage, PropCustomString, PropText:
		return s, nil
	case PropFloatRangeSlider:
		v, err := parseFloats(s, 2)
		if err != nil {
			return nil, fmt.Errorf("float range: %w", err)
		}
		return FloatRange{v[0], v[1]}, nil
	case PropIntegerRangeSlider:
		v, err := parseInts(s, 2)
		if err != nil {
			return nil, fmt.Errorf("integer range: %w", err)
		}
		return IntegerRange{v[0], v[1]}, nil
	case PropVector3:
		v, err := parseFloats(s, 3)
		if err != nil {
			return nil, fmt.Errorf("vector3: %w", err)
		}
		return Vector3{v[0], v[1], v[2]}, nil
	case PropColorRamp, PropRamp:
		var r Ramp
		for _, ch := range e.selectAll("rampchanneldata/rampchannel") {
			r.Channels = append(r.Channels, loadRampChannel(t, ch))
		}
		return r, nil
	}
	return nil, fmt.Errorf("unsupported property type %d", t)
}

// loadDatum picks the property value for platform from the data/datum
// children of e. A datum for the platform wins over a generic one; data
// without a platform attribute is ignored.
func loadDatum(platform uuid.UUID, e *element, t PropType, name string) (any, error) {
	var out any
	for _, d := range e.selectAll("data/datum") {
		s, ok := d.lookup("platform")
		if !ok {
			continue
		}
		p := parseUUID(s)
		if p != uuid.Nil && p != platform {
			continue
		}
		v, err := loadValue(t, d)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", name, err)
		}
		out = v
		if p != uuid.Nil {
			break
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%q has no datum", name)
	}
	return out, nil
}
