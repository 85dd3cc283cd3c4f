package fxbank

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/meigma/cook/internal/assetpath"
)

// SchemaFilename is the component definition file in the source
// directory root.
const SchemaFilename = "AppComponentDefinition.xcd"

// nameID identifies the implicit Name property every component carries.
var nameID = uuid.MustParse("EF1D7D1E-02B6-4548-80D9-5EF2FBCDA237")

// platformIDs are the editor's platform identifiers. Linux shares the
// Android data.
var platformIDs = map[assetpath.Platform]uuid.UUID{
	assetpath.PC:      uuid.MustParse("38C3409D-8620-449a-ABE7-824D99AF44CB"),
	assetpath.IOS:     uuid.MustParse("03543EC0-2235-11E2-81C1-0800200C9A66"),
	assetpath.Android: uuid.MustParse("03543EC0-2235-11E2-78C1-0831200C7866"),
	assetpath.Linux:   uuid.MustParse("03543EC0-2235-11E2-78C1-0831200C7866"),
}

// PhaseDef is a named effect phase.
type PhaseDef struct {
	ID              uuid.UUID
	Name            string
	Color           Color
	InitialDuration float32
	InitialPlays    int32
}

// ConstraintDef limits the values of a property, optionally on one
// platform only.
type ConstraintDef struct {
	Type     ConstraintType
	Value    float64
	Platform uuid.UUID
}

// RampChannelDef describes one channel of a ramp property.
type RampChannelDef struct {
	Name   string
	Color  Color
	ID     uuid.UUID
	Hidden bool
}

// PropDef is a property of a component class and its default value.
type PropDef struct {
	// FullName is Name qualified by the property groups it appears in.
	FullName string
	Name     string
	ID       uuid.UUID
	TypeName string
	Type     PropType

	ReadOnly       bool
	Hidden         bool
	NoDefaultValue bool
	Specializable  bool

	Constraints  []ConstraintDef
	KeyframeType KeyframeType
	Channels     []RampChannelDef

	Default any
}

func namePropDef() PropDef {
	return PropDef{ID: nameID, Name: "Name", FullName: "Name", Type: PropText, Default: "Component"}
}

// ComponentDef is a component class.
type ComponentDef struct {
	Class string
	Color Color
	Props []PropDef
}

// Schema is the component definition shared by every effect of a
// platform.
type Schema struct {
	Platform   assetpath.Platform
	Version    string
	Phases     []PhaseDef
	Components []ComponentDef

	classes map[string]int
	props   map[uuid.UUID]*PropDef
}

// Component returns the definition of class.
func (s *Schema) Component(class string) (*ComponentDef, bool) {
	i, ok := s.classes[class]
	if !ok {
		return nil, false
	}
	return &s.Components[i], true
}

// Prop returns the definition of the property with id.
func (s *Schema) Prop(id uuid.UUID) (*PropDef, bool) {
	p, ok := s.props[id]
	return p, ok
}

func (s *Schema) platformID() uuid.UUID { return platformIDs[s.Platform] }

// LoadSchemaFile loads the component definition from the source
// directory of layout.
func LoadSchemaFile(layout assetpath.Layout) (*Schema, error) {
	name := filepath.Join(layout.SourceDir(), SchemaFilename)
	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	defer f.Close()
	return LoadSchema(f, layout.Platform())
}

// LoadSchema parses a component definition document for platform.
func LoadSchema(r io.Reader, platform assetpath.Platform) (*Schema, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	s := &Schema{
		Platform: platform,
		Version:  doc.selectOne("root").attr("version"),
		classes:  make(map[string]int),
		props:    make(map[uuid.UUID]*PropDef),
	}
	if len(doc.selectAll("root/inputs/input")) > 0 {
		return nil, fmt.Errorf("%w: inputs are not supported", ErrSchema)
	}

	for _, e := range doc.selectAll("root/phases/object/data") {
		s.Phases = append(s.Phases, PhaseDef{
			ID:              e.attrUUID("id"),
			Name:            e.attr("name"),
			Color:           Color(uint32(e.attrInt("color", 0))), //nolint:gosec // ARGB bit pattern
			InitialDuration: e.attrFloat("initialduration", 5),
			InitialPlays:    e.attrInt("initialplaycount", 1),
		})
	}

	for _, e := range doc.selectAll("root/components/component") {
		c, err := s.loadComponent(e)
		if err != nil {
			return nil, err
		}
		if _, dup := s.classes[c.Class]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateClass, c.Class)
		}
		s.classes[c.Class] = len(s.Components)
		s.Components = append(s.Components, c)
	}

	// Every component repeats the Name property under one id; the
	// definitions are identical, so the first one stands for all.
	for ci := range s.Components {
		c := &s.Components[ci]
		for pi := range c.Props {
			p := &c.Props[pi]
			if prev, dup := s.props[p.ID]; dup {
				if p.ID != nameID {
					return nil, fmt.Errorf("%w: %q and %q share id %s", ErrDuplicateProperty, prev.Name, p.Name, p.ID)
				}
				continue
			}
			s.props[p.ID] = p
		}
	}
	return s, nil
}

func (s *Schema) loadComponent(e *element) (ComponentDef, error) {
	c := ComponentDef{
		Class: e.attr("name"),
		Color: Color(uint32(e.attrInt("color", 0))), //nolint:gosec // ARGB bit pattern
		Props: []PropDef{namePropDef()},
	}
	props := e.selectOne("properties")
	for _, pe := range props.selectAll("property") {
		p, err := s.loadProp(pe)
		if err != nil {
			return ComponentDef{}, fmt.Errorf("%w: component %q: %w", ErrSchema, c.Class, err)
		}
		c.Props = append(c.Props, p)
	}
	for _, g := range props.selectAll("propertygroup") {
		applyGroups("", g, c.Props)
	}
	for i := range c.Props {
		if c.Props[i].FullName == "" {
			c.Props[i].FullName = c.Props[i].Name
		}
	}
	return c, nil
}

// applyGroups qualifies the names of grouped properties. Root groups add
// no prefix.
func applyGroups(namespace string, e *element, props []PropDef) {
	if namespace != "" {
		for _, pe := range e.selectAll("properties/property") {
			id := pe.attrUUID("id")
			for i := range props {
				if props[i].ID == id {
					props[i].FullName = namespace + "." + props[i].Name
					break
				}
			}
		}
	}
	for _, g := range e.selectAll("children/propertygroup") {
		nested := g.attr("name")
		if nested == "" {
			continue
		}
		if namespace != "" {
			nested = namespace + "." + nested
		}
		applyGroups(nested, g, props)
	}
}

func (s *Schema) loadProp(e *element) (PropDef, error) {
	p := PropDef{Name: e.attr("name"), ID: e.attrUUID("id")}
	d := e.selectOne("definition")
	p.TypeName = d.attr("type")
	p.Type = propTypes[d.attrUUID("typeid")]
	if p.Type == PropUnknown {
		return PropDef{}, fmt.Errorf("property %q: unknown property type %q", p.Name, p.TypeName)
	}
	if d.has("input") || d.attrBool("acceptsinput") {
		return PropDef{}, fmt.Errorf("property %q: inputs are not supported", p.Name)
	}
	p.ReadOnly = d.attrBool("readonly")
	p.Hidden = d.attrBool("hidden")
	p.NoDefaultValue = d.attrBool("nodefaultvalue")
	p.Specializable = d.attrBool("specializable")

	for _, ce := range d.selectAll("constraints/constraint") {
		classID := ce.attrUUID("classid")
		t := constraintTypes[classID]
		if t == ConstraintUnknown {
			return PropDef{}, fmt.Errorf("property %q: unknown constraint type %s", p.Name, classID)
		}
		p.Constraints = append(p.Constraints, ConstraintDef{
			Type:     t,
			Value:    parseDouble(ce.attr("value")),
			Platform: ce.attrUUID("platform"),
		})
	}

	if p.Type == PropColorRamp || p.Type == PropRamp {
		p.KeyframeType = KeyframeColor
		if strings.EqualFold(d.attr("keyframetype"), "FloatKeyframe") {
			p.KeyframeType = KeyframeFloat
		}
		for _, ch := range d.selectAll("channels/channel") {
			p.Channels = append(p.Channels, RampChannelDef{
				Name:   ch.attr("name"),
				Color:  Color(uint32(ch.attrInt("color", 0))), //nolint:gosec // ARGB bit pattern
				ID:     ch.attrUUID("id"),
				Hidden: ch.attrBool("hidden"),
			})
		}
		if len(p.Channels) == 0 {
			return PropDef{}, fmt.Errorf("property %q: ramp has no channels", p.Name)
		}
	}

	v, err := loadDatum(s.platformID(), d, p.Type, p.Name)
	if err != nil {
		return PropDef{}, err
	}
	p.Default = v
	return p, nil
}

func parseDouble(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
