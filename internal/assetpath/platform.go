package assetpath

import (
	"fmt"
	"strings"
)

// Platform is a cook target platform.
type Platform uint8

// Target platforms. Values are written into archive headers.
const (
	PC Platform = iota
	IOS
	Android
	Linux

	platformCount
)

var platformNames = [platformCount]string{"PC", "IOS", "Android", "Linux"}

// Linux shares Android content.
var contentDirNames = [platformCount]string{"ContentPC", "ContentIOS", "ContentAndroid", "ContentAndroid"}

var generatedDirNames = [platformCount]string{"GeneratedPC", "GeneratedIOS", "GeneratedAndroid", "GeneratedAndroid"}

// ParsePlatform parses a platform name case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	for i, name := range platformNames {
		if strings.EqualFold(name, s) {
			return Platform(i), nil
		}
	}
	return 0, fmt.Errorf("assetpath: unknown platform %q", s)
}

// String returns the canonical platform name.
func (p Platform) String() string {
	if p >= platformCount {
		return "Unknown"
	}
	return platformNames[p]
}

// ContentDirName returns the name of the platform's cooked content directory.
func (p Platform) ContentDirName() string {
	if p >= platformCount {
		return ""
	}
	return contentDirNames[p]
}

// GeneratedDirName returns the name of the platform's generated source folder.
func (p Platform) GeneratedDirName() string {
	if p >= platformCount {
		return ""
	}
	return generatedDirNames[p]
}
