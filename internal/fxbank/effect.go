package fxbank

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Phase is a phase instance of an effect.
type Phase struct {
	DefinitionID uuid.UUID
	Duration     float32
	PlayCount    int32
}

// Prop is a property value set on a component instance.
type Prop struct {
	ID    uuid.UUID
	Def   *PropDef
	Value any
}

// Component is a component instance placed on a track.
type Component struct {
	Class string
	Start float32
	End   float32
	Props []Prop
}

// Track is a row of components. Muted tracks are not cooked.
type Track struct {
	Name       string
	Muted      bool
	Locked     bool
	Components []Component
}

// TrackGroup groups tracks.
type TrackGroup struct {
	Name   string
	Tracks []Track
}

// packedComponent is a cooked component: its instance, the track group
// it came from and how many of its properties differ from the defaults.
type packedComponent struct {
	component  *Component
	trackGroup uint32
	nonDefault uint32
}

// Effect is a loaded effect document.
type Effect struct {
	// BankName is the base name of the effect file; Name is its
	// lowercase form.
	BankName      string
	Name          string
	ID            uuid.UUID
	Version       string
	EffectVersion string

	Phases      []Phase
	Colors      []Color
	TrackGroups []TrackGroup

	packed []packedComponent
	// nonDefault holds the properties that differ from their default, in
	// packed component order.
	nonDefault []*Prop
}

// Duration is the longer of the last component end and the sum of the
// phase durations.
func (e *Effect) Duration() float32 {
	var comps float32
	for _, g := range e.TrackGroups {
		for _, t := range g.Tracks {
			for _, c := range t.Components {
				comps = max(c.End, comps)
			}
		}
	}
	var phases float32
	for _, p := range e.Phases {
		phases += p.Duration
	}
	return max(comps, phases)
}

// LoadEffect parses the effect document r against schema. rel is the
// effect's relative path without extension. Properties the schema no
// longer defines are dropped.
func LoadEffect(schema *Schema, rel string, r io.Reader) (*Effect, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEffect, err)
	}
	root := doc.selectOne("effect")
	e := &Effect{
		BankName:      path.Base(rel),
		ID:            root.attrUUID("id"),
		Version:       root.attr("version"),
		EffectVersion: root.attr("effectversion"),
	}
	e.Name = strings.ToLower(e.BankName)

	for _, pe := range doc.selectAll("effect/phases/object/data") {
		e.Phases = append(e.Phases, Phase{
			DefinitionID: pe.attrUUID("definitionid"),
			Duration:     pe.attrFloat("duration", 5),
			PlayCount:    pe.attrInt("playcount", 1),
		})
	}
	for _, ce := range doc.selectAll("effect/colors/color") {
		e.Colors = append(e.Colors, Color(uint32(ce.textInt()))) //nolint:gosec // ARGB bit pattern
	}
	for _, ge := range doc.selectAll("effect/trackgroups/trackgroup") {
		g, err := loadTrackGroup(schema, ge)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEffect, err)
		}
		e.TrackGroups = append(e.TrackGroups, g)
	}
	e.pack()
	return e, nil
}

// pack flattens the unmuted components and collects their non-default
// properties.
func (e *Effect) pack() {
	for gi := range e.TrackGroups {
		g := &e.TrackGroups[gi]
		for ti := range g.Tracks {
			t := &g.Tracks[ti]
			if t.Muted {
				continue
			}
			for ci := range t.Components {
				c := &t.Components[ci]
				pc := packedComponent{component: c, trackGroup: uint32(gi)} //nolint:gosec // small counts
				for pi := range c.Props {
					p := &c.Props[pi]
					if !valuesEqual(p.Value, p.Def.Default) {
						e.nonDefault = append(e.nonDefault, p)
						pc.nonDefault++
					}
				}
				e.packed = append(e.packed, pc)
			}
		}
	}
}

func loadTrackGroup(schema *Schema, e *element) (TrackGroup, error) {
	g := TrackGroup{Name: e.attr("name")}
	for _, te := range e.selectAll("track") {
		t := Track{
			Name:   te.attr("name"),
			Muted:  te.attrBool("muted"),
			Locked: te.attrBool("locked"),
		}
		for _, ce := range te.selectAll("component") {
			c, err := loadComponent(schema, ce)
			if err != nil {
				return TrackGroup{}, fmt.Errorf("track %q: %w", t.Name, err)
			}
			t.Components = append(t.Components, c)
		}
		g.Tracks = append(g.Tracks, t)
	}
	return g, nil
}

func loadComponent(schema *Schema, e *element) (Component, error) {
	c := Component{
		Class: e.attr("class"),
		Start: e.attrFloat("start", 0),
		End:   e.attrFloat("end", 0),
	}
	for _, pe := range e.selectAll("properties/property") {
		id := pe.attrUUID("id")
		def, ok := schema.Prop(id)
		if !ok {
			continue
		}
		v, err := loadDatum(schema.platformID(), pe, def.Type, def.Name)
		if err != nil {
			return Component{}, fmt.Errorf("component %q: %w", c.Class, err)
		}
		c.Props = append(c.Props, Prop{ID: id, Def: def, Value: v})
	}
	return c, nil
}
