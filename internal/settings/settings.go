// Package settings loads cooker settings from a YAML file.
//
// Command-line flags override file values; see cmd/cooker.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meigma/cook/internal/assetpath"
)

// ErrInvalid is returned by Validate.
var ErrInvalid = errors.New("settings: invalid cooker settings")

// Settings configures one cooker run.
type Settings struct {
	// BaseDir is the project root holding Data/ and Source/.
	BaseDir string `yaml:"base_dir"`

	// Platform is the target platform name.
	Platform string `yaml:"platform"`

	// PackageFile is the package configuration, relative to the config
	// directory unless absolute. Empty skips package cooking.
	PackageFile string `yaml:"package_file"`

	// Local selects a fast developer build: no compression dictionaries,
	// fastest compression, packages marked ExcludeFromLocal are skipped.
	Local bool `yaml:"local"`

	// ForceGenCdict regenerates compression dictionaries even if present.
	ForceGenCdict bool `yaml:"force_gen_cdict"`

	// Changelist is the build changelist. Required unless Local.
	Changelist uint32 `yaml:"changelist"`

	// VersionMajor is the build major version written to archives.
	VersionMajor uint16 `yaml:"version_major"`

	// SingleFile cooks one source file instead of everything out of date.
	SingleFile string `yaml:"single_file"`

	// Journal enables the journaling source-control client.
	Journal string `yaml:"scc_journal"`

	// LockTimeout bounds the wait for the cooker lock, e.g. "5m".
	LockTimeout string `yaml:"lock_timeout"`

	// Workers overrides the parallel cook worker count. Zero uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`
}

// Default returns settings for a local PC build of the working directory.
func Default() *Settings {
	return &Settings{
		BaseDir:      ".",
		Platform:     assetpath.PC.String(),
		Local:        true,
		VersionMajor: 1,
		LockTimeout:  "5m",
	}
}

// LoadFile reads name over the defaults.
func LoadFile(name string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", name, err)
	}
	if s.BaseDir != "" && !filepath.IsAbs(s.BaseDir) {
		s.BaseDir = filepath.Join(filepath.Dir(name), s.BaseDir)
	}
	return s, nil
}

// Validate checks the settings for consistency.
func (s *Settings) Validate() error {
	if s.BaseDir == "" {
		return fmt.Errorf("%w: base_dir is required", ErrInvalid)
	}
	if _, err := assetpath.ParsePlatform(s.Platform); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !s.Local && s.Changelist == 0 {
		return fmt.Errorf("%w: changelist is required unless local", ErrInvalid)
	}
	if s.VersionMajor == 0 {
		return fmt.Errorf("%w: version_major must be at least 1", ErrInvalid)
	}
	if _, err := s.LockWait(); err != nil {
		return err
	}
	if s.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	return nil
}

// PlatformValue returns the parsed platform. Call Validate first.
func (s *Settings) PlatformValue() assetpath.Platform {
	p, err := assetpath.ParsePlatform(s.Platform)
	if err != nil {
		return assetpath.PC
	}
	return p
}

// LockWait returns LockTimeout as a duration.
func (s *Settings) LockWait() (time.Duration, error) {
	if s.LockTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.LockTimeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: lock_timeout %q", ErrInvalid, s.LockTimeout)
	}
	return d, nil
}

// BuildChangelist returns the changelist written to archives. Local
// builds without a changelist use 1.
func (s *Settings) BuildChangelist() uint32 {
	if s.Changelist == 0 {
		return 1
	}
	return s.Changelist
}
