package assetpath

import "strings"

// FileType identifies the kind of a cooked asset.
type FileType uint8

// File types, in stable order. The numeric values are persisted in cook
// metadata and must not be reordered.
const (
	Unknown FileType = iota
	Animation2D
	Csv
	Effect
	EffectHeader
	Exe
	Font
	FxBank
	HTML
	JSON
	PEMCertificate
	Protobuf
	SaveGame
	SceneAsset
	ScenePrefab
	Script
	SoundBank
	SoundProject
	Texture0
	Texture1
	Texture2
	Texture3
	Texture4
	Text
	UIMovie
	Wav
	XML
	ScriptProject
	Cs
	Video

	fileTypeCount
)

// TypeCount is the number of file types, Unknown included.
const TypeCount = int(fileTypeCount)

// FirstTexture and LastTexture bound the texture mip family.
const (
	FirstTexture = Texture0
	LastTexture  = Texture4
)

type fileTypeInfo struct {
	name   string
	cooked string
	source string
}

var fileTypes = [fileTypeCount]fileTypeInfo{
	Unknown:        {"Unknown", "", ""},
	Animation2D:    {"Animation2D", ".saf", ".son"},
	Csv:            {"Csv", ".csv", ".csv"},
	Effect:         {"Effect", ".fxc", ".fx"},
	EffectHeader:   {"EffectHeader", ".fxh_marker", ".fxh"},
	Exe:            {"Exe", ".exe", ".exe"},
	Font:           {"Font", ".sff", ".ttf"},
	FxBank:         {"FxBank", ".fxb", ".xfx"},
	HTML:           {"Html", ".html", ".html"},
	JSON:           {"Json", ".json", ".json"},
	PEMCertificate: {"PEMCertificate", ".pem", ".pem"},
	Protobuf:       {"Protobuf", ".pb", ".proto"},
	SaveGame:       {"SaveGame", ".dat", ".dat"},
	SceneAsset:     {"SceneAsset", ".ssa", ".fbx"},
	ScenePrefab:    {"ScenePrefab", ".spf", ".prefab"},
	Script:         {"Script", ".lbc", ".lua"},
	SoundBank:      {"SoundBank", ".bank", ".bank"},
	SoundProject:   {"SoundProject", ".fev", ".fspro"},
	Texture0:       {"Texture0", ".sif0", ".png"},
	Texture1:       {"Texture1", ".sif1", ".png"},
	Texture2:       {"Texture2", ".sif2", ".png"},
	Texture3:       {"Texture3", ".sif3", ".png"},
	Texture4:       {"Texture4", ".sif4", ".png"},
	Text:           {"Text", ".txt", ".txt"},
	UIMovie:        {"UIMovie", ".fcn", ".swf"},
	Wav:            {"Wav", ".wav", ".wav"},
	XML:            {"Xml", ".xml", ".xml"},
	ScriptProject:  {"ScriptProject", ".csp", ".csproj"},
	Cs:             {"Cs", ".cs", ".cs"},
	Video:          {"Video", ".avi", ".avi"},
}

// extensions maps every known extension, cooked or source, to its type.
var extensions = map[string]FileType{
	".avi":        Video,
	".bank":       SoundBank,
	".cs":         Cs,
	".csp":        ScriptProject,
	".csproj":     ScriptProject,
	".csv":        Csv,
	".dat":        SaveGame,
	".exe":        Exe,
	".fbx":        SceneAsset,
	".fcn":        UIMovie,
	".fdp":        SoundProject,
	".fev":        SoundProject,
	".fsb":        SoundBank,
	".fspro":      SoundProject,
	".fx":         Effect,
	".fxb":        FxBank,
	".fxc":        Effect,
	".fxh":        EffectHeader,
	".fxh_marker": EffectHeader,
	".html":       HTML,
	".json":       JSON,
	".lbc":        Script,
	".lua":        Script,
	".pb":         Protobuf,
	".pem":        PEMCertificate,
	".png":        Texture0,
	".prefab":     ScenePrefab,
	".proto":      Protobuf,
	".saf":        Animation2D,
	".sff":        Font,
	".sif0":       Texture0,
	".sif1":       Texture1,
	".sif2":       Texture2,
	".sif3":       Texture3,
	".sif4":       Texture4,
	".son":        Animation2D,
	".spf":        ScenePrefab,
	".ssa":        SceneAsset,
	".swf":        UIMovie,
	".ttf":        Font,
	".txt":        Text,
	".wav":        Wav,
	".xfx":        FxBank,
	".xml":        XML,
}

// TypeFromExtension returns the file type for ext (with leading dot),
// compared case-insensitively.
func TypeFromExtension(ext string) FileType {
	if t, ok := extensions[strings.ToLower(ext)]; ok {
		return t
	}
	return Unknown
}

// TypeFromName parses the name returned by [FileType.String].
func TypeFromName(name string) FileType {
	for i := range fileTypes {
		if strings.EqualFold(fileTypes[i].name, name) {
			return FileType(i)
		}
	}
	return Unknown
}

// IsKnownExtension reports whether ext names any known file type.
func IsKnownExtension(ext string) bool {
	_, ok := extensions[strings.ToLower(ext)]
	return ok
}

func (t FileType) valid() bool { return t < fileTypeCount }

// String returns the type name.
func (t FileType) String() string {
	if !t.valid() {
		return fileTypes[Unknown].name
	}
	return fileTypes[t].name
}

// CookedExtension returns the extension of cooked output of this type.
func (t FileType) CookedExtension() string {
	if !t.valid() {
		return ""
	}
	return fileTypes[t].cooked
}

// SourceExtension returns the extension of source input of this type.
func (t FileType) SourceExtension() string {
	if !t.valid() {
		return ""
	}
	return fileTypes[t].source
}

// IsTexture reports whether t is one of the texture mip types.
func (t FileType) IsTexture() bool {
	return t >= FirstTexture && t <= LastTexture
}

// AllTypes returns every valid file type except Unknown.
func AllTypes() []FileType {
	out := make([]FileType, 0, fileTypeCount-1)
	for t := Animation2D; t < fileTypeCount; t++ {
		out = append(out, t)
	}
	return out
}
