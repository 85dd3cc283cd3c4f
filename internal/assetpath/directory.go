package assetpath

import (
	"fmt"
	"strings"
)

// GameDirectory is a logical root for assets.
type GameDirectory uint8

// Game directories. Values are written into archive headers.
const (
	DirUnknown GameDirectory = iota
	DirConfig
	DirContent
	DirLog
	DirSave
	DirToolsBin
	DirVideos

	gameDirectoryCount
)

var schemes = [gameDirectoryCount]string{"", "config", "content", "log", "save", "tools", "video"}

var dirNames = [gameDirectoryCount]string{"Unknown", "Config", "Content", "Log", "Save", "ToolsBin", "Videos"}

// Scheme returns the URI scheme for the directory.
func (d GameDirectory) Scheme() string {
	if d >= gameDirectoryCount {
		return ""
	}
	return schemes[d]
}

// String returns the directory name.
func (d GameDirectory) String() string {
	if d >= gameDirectoryCount {
		return dirNames[DirUnknown]
	}
	return dirNames[d]
}

// ParseGameDirectory parses a directory name as written in package configs.
func ParseGameDirectory(s string) (GameDirectory, error) {
	for i, name := range dirNames {
		if i != int(DirUnknown) && strings.EqualFold(name, s) {
			return GameDirectory(i), nil
		}
	}
	return DirUnknown, fmt.Errorf("assetpath: unknown game directory %q", s)
}

// DirectoryFromScheme returns the directory for a URI scheme, or DirUnknown.
func DirectoryFromScheme(s string) GameDirectory {
	return directoryFromScheme(s)
}

func directoryFromScheme(s string) GameDirectory {
	for i, scheme := range schemes {
		if i != int(DirUnknown) && strings.EqualFold(scheme, s) {
			return GameDirectory(i)
		}
	}
	return DirUnknown
}
