// Package pkgconfig loads package definitions: which cooked files go into
// which archive, and how they are transformed on the way in.
package pkgconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/compress"
)

// ErrInvalidConfig is returned for a malformed package configuration.
var ErrInvalidConfig = errors.New("pkgconfig: invalid package configuration")

// FilterResult is the outcome of testing a file against a package's
// include, exclude and exemption wildcards.
type FilterResult int

// Filter results.
const (
	NotIncluded FilterResult = iota
	IncludedButExcluded
	Pass
	PassWithExemption
)

func (r FilterResult) String() string {
	switch r {
	case IncludedButExcluded:
		return "IncludedButExcluded"
	case Pass:
		return "Pass"
	case PassWithExemption:
		return "PassWithExemption"
	default:
		return "NotIncluded"
	}
}

// Package is one archive definition.
type Package struct {
	Name                        string   `json:"Name"`
	Root                        string   `json:"Root"`
	GameDirectoryType           string   `json:"GameDirectoryType"`
	Extensions                  []string `json:"Extensions"`
	AdditionalIncludes          []string `json:"AdditionalIncludes"`
	IncludeFiles                []string `json:"IncludeFiles"`
	ExcludeFiles                []string `json:"ExcludeFiles"`
	ExcludeExemptions           []string `json:"ExcludeExemptions"`
	NonDependencySearchPatterns []string `json:"NonDependencySearchPatterns"`
	PopulateFromDependencies    bool     `json:"PopulateFromDependencies"`
	CompressFiles               bool     `json:"CompressFiles"`
	CookJSON                    bool     `json:"CookJson"`
	MinifyJSON                  bool     `json:"MinifyJson"`
	Obfuscate                   bool     `json:"Obfuscate"`
	ZipArchive                  bool     `json:"ZipArchive"`
	CustomSarExtension          string   `json:"CustomSarExtension"`
	DeltaArchives               []string `json:"DeltaArchives"`
	Overflow                    string   `json:"Overflow"`
	OverflowTargetBytes         uint64   `json:"OverflowTargetBytes"`
	OverflowConsider            []string `json:"OverflowConsider"`
	OverflowTrainingData        string   `json:"OverflowTrainingData"`
	Variations                  []string `json:"Variations"`
	LocaleBaseArchive           string   `json:"LocaleBaseArchive"`
	LocaleBaseFilename          string   `json:"LocaleBaseFilename"`
	LocalePatchFilename         string   `json:"LocalePatchFilename"`
	UseCompressionDictionary    bool     `json:"UseCompressionDictionary"`
	CompressionDictionarySize   uint32   `json:"CompressionDictionarySize"`
	SortByModifiedTime          bool     `json:"SortByModifiedTime"`
	SupportDirectoryQueries     bool     `json:"SupportDirectoryQueries"`
	IncludeInSourceControl      bool     `json:"IncludeInSourceControl"`
	ExcludeFromLocal            bool     `json:"ExcludeFromLocal"`

	dir          assetpath.GameDirectory
	level        compress.Level
	types        map[assetpath.FileType]struct{}
	includes     []Wildcard
	excludes     []Wildcard
	exemptions   []Wildcard
	additional   []assetpath.FilePath
	trainingData assetpath.FilePath
	localeBase   string
	localePatch  string
}

// Config is a parsed package configuration file.
type Config struct {
	Platform                string     `json:"Platform"`
	ConfigDirectoryExcludes []string   `json:"ConfigDirectoryExcludes"`
	Packages                []*Package `json:"Packages"`

	platform       assetpath.Platform
	configExcludes []Wildcard
}

// Load reads and parses the configuration file name.
func Load(name string, local bool) (*Config, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("pkgconfig: read %s: %w", name, err)
	}
	cfg, err := Parse(data, local)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cfg, nil
}

// Parse parses a JSON (comments and trailing commas allowed) package
// configuration. local selects the fast-build adjustments.
func Parse(data []byte, local bool) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	p, err := assetpath.ParsePlatform(cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.platform = p
	cfg.configExcludes = compile(cfg.ConfigDirectoryExcludes)

	seen := make(map[string]struct{}, len(cfg.Packages))
	for i, pkg := range cfg.Packages {
		if pkg == nil {
			return nil, fmt.Errorf("%w: package %d is null", ErrInvalidConfig, i)
		}
		if err := pkg.postLoad(local); err != nil {
			return nil, err
		}
		key := strings.ToLower(pkg.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: duplicate package %q", ErrInvalidConfig, pkg.Name)
		}
		seen[key] = struct{}{}
	}
	return &cfg, nil
}

// PlatformValue returns the parsed target platform.
func (c *Config) PlatformValue() assetpath.Platform { return c.platform }

// Package returns the package named name, or nil.
func (c *Config) Package(name string) *Package {
	for _, p := range c.Packages {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// IsExcludedFromConfigs reports whether a config file is excluded from
// the dependency scan roots.
func (c *Config) IsExcludedFromConfigs(fp assetpath.FilePath) bool {
	return matchesAny(c.configExcludes, fp.RelativeFilename())
}

func (p *Package) postLoad(local bool) error {
	if p.Name == "" {
		return fmt.Errorf("%w: package with no name", ErrInvalidConfig)
	}
	wrap := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidConfig, p.Name, fmt.Sprintf(format, args...))
	}

	if local {
		p.UseCompressionDictionary = false
		p.CompressionDictionarySize = 0
		p.level = compress.LevelFastest
	} else {
		p.level = compress.LevelBest
		p.ExcludeFromLocal = false
	}

	if p.GameDirectoryType == "" {
		p.dir = assetpath.DirContent
	} else {
		d, err := assetpath.ParseGameDirectory(p.GameDirectoryType)
		if err != nil {
			return wrap("%v", err)
		}
		p.dir = d
	}

	p.types = make(map[assetpath.FileType]struct{}, len(p.Extensions))
	for _, ext := range p.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		t := assetpath.TypeFromExtension(ext)
		if t == assetpath.Unknown {
			return wrap("unknown extension %q", ext)
		}
		p.types[t] = struct{}{}
	}

	p.additional = p.additional[:0]
	for _, s := range p.AdditionalIncludes {
		var fp assetpath.FilePath
		var err error
		if assetpath.IsURI(s) {
			fp, err = assetpath.ParseURI(s)
		} else {
			fp, err = assetpath.New(p.dir, s)
		}
		if err != nil {
			return wrap("additional include: %v", err)
		}
		p.additional = append(p.additional, fp)
	}

	p.trainingData = assetpath.FilePath{}
	if p.OverflowTrainingData != "" {
		fp, err := assetpath.ParseURI(p.OverflowTrainingData)
		if err != nil {
			return wrap("overflow training data: %v", err)
		}
		p.trainingData = fp
	}

	p.localeBase = trimExt(p.LocaleBaseFilename)
	p.localePatch = trimExt(p.LocalePatchFilename)

	p.includes = compile(p.IncludeFiles)
	p.excludes = compile(p.ExcludeFiles)
	p.exemptions = compile(p.ExcludeExemptions)
	return nil
}

func trimExt(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '.'); i > strings.LastIndexByte(name, '/') {
		return name[:i]
	}
	return name
}

// GameDirectory returns the directory the package's files live in.
func (p *Package) GameDirectory() assetpath.GameDirectory { return p.dir }

// CompressionLevel returns the ZSTD level used for entries.
func (p *Package) CompressionLevel() compress.Level { return p.level }

// Additional returns the parsed AdditionalIncludes.
func (p *Package) Additional() []assetpath.FilePath { return p.additional }

// TrainingData returns the overflow training data path, which may be invalid.
func (p *Package) TrainingData() assetpath.FilePath { return p.trainingData }

// HasType reports whether the package's extension set accepts t.
func (p *Package) HasType(t assetpath.FileType) bool {
	_, ok := p.types[t]
	return ok
}

// FileClass distinguishes locale files that need special archive handling.
type FileClass int

// File classes.
const (
	Normal FileClass = iota
	LocaleBaseFile
	LocalePatchFile
)

// Classify returns the class of fp. Only JSON files whose relative path
// ends with the configured locale base or patch name are special.
func (p *Package) Classify(fp assetpath.FilePath) FileClass {
	if fp.Type != assetpath.JSON {
		return Normal
	}
	rel := strings.ToLower(fp.Rel)
	if p.localeBase != "" && strings.HasSuffix(rel, strings.ToLower(p.localeBase)) {
		return LocaleBaseFile
	}
	if p.localePatch != "" && strings.HasSuffix(rel, strings.ToLower(p.localePatch)) {
		return LocalePatchFile
	}
	return Normal
}

// LocaleBaseFor returns the on-disk locale base file that a locale patch
// file is diffed against: the base filename in the patch's config folder.
func (p *Package) LocaleBaseFor(patch assetpath.FilePath) (assetpath.FilePath, error) {
	dir := path.Dir(patch.Rel)
	name := p.LocaleBaseFilename
	if dir != "." {
		name = dir + "/" + name
	}
	return assetpath.New(assetpath.DirConfig, name)
}

// TestFilters tests fp against the include, exclude and exemption lists.
// An empty include list includes everything.
func (p *Package) TestFilters(fp assetpath.FilePath) FilterResult {
	name := fp.RelativeFilename()
	if len(p.includes) > 0 && !matchesAny(p.includes, name) {
		return NotIncluded
	}
	if !matchesAny(p.excludes, name) {
		return Pass
	}
	if matchesAny(p.exemptions, name) {
		return PassWithExemption
	}
	return IncludedButExcluded
}

// ShouldIncludeFile reports whether a dependency belongs in the package.
func (p *Package) ShouldIncludeFile(fp assetpath.FilePath) bool {
	if !p.HasType(fp.Type) {
		return false
	}
	r := p.TestFilters(fp)
	return r == Pass || r == PassWithExemption
}

// SarExtension returns the archive extension, including the dot.
func (p *Package) SarExtension() string {
	if p.CustomSarExtension != "" {
		if strings.HasPrefix(p.CustomSarExtension, ".") {
			return p.CustomSarExtension
		}
		return "." + p.CustomSarExtension
	}
	if p.ZipArchive {
		return ".zip"
	}
	return ".sar"
}
