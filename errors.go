package cook

import (
	"github.com/meigma/cook/internal/assetpath"
	"github.com/meigma/cook/internal/deps"
	"github.com/meigma/cook/internal/fxbank"
	"github.com/meigma/cook/internal/lockfile"
	"github.com/meigma/cook/internal/pkgconfig"
	"github.com/meigma/cook/internal/pkgcook"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/task"
)

// Errors re-exported from the task framework.
var (
	// ErrCookerBug marks an inconsistency only a defective task can cause.
	ErrCookerBug = task.ErrCookerBug

	// ErrNoTask is returned when no registered task can cook a file.
	ErrNoTask = task.ErrNoTask

	// ErrBatchFailed is returned when one or more files of a batch failed.
	ErrBatchFailed = task.ErrBatchFailed

	// ErrInvalidPath is returned for filenames that are not valid asset paths.
	ErrInvalidPath = assetpath.ErrInvalidPath

	// ErrLockTimeout is returned when another cooker holds the lock too long.
	ErrLockTimeout = lockfile.ErrTimeout
)

// Errors re-exported from packaging.
var (
	// ErrInvalidConfig is returned for malformed package configurations.
	ErrInvalidConfig = pkgconfig.ErrInvalidConfig

	// ErrPlatformMismatch is returned when the package configuration
	// targets another platform.
	ErrPlatformMismatch = pkgcook.ErrPlatformMismatch

	// ErrOverflow is returned when overflow settings cannot be met.
	ErrOverflow = pkgcook.ErrOverflow

	// ErrMissingDependencies is returned when referenced files do not exist.
	ErrMissingDependencies = deps.ErrMissingDependencies

	// ErrVersionMismatch is returned for archives of another format version.
	ErrVersionMismatch = sar.ErrVersionMismatch

	// ErrCorrupt is returned for archives that fail validation.
	ErrCorrupt = sar.ErrCorrupt
)

// Errors re-exported from the FX bank cook.
var (
	// ErrFxSchema is returned when the FX component definition is missing
	// or invalid.
	ErrFxSchema = fxbank.ErrSchema

	// ErrDuplicateClass is returned when two FX components share a class.
	ErrDuplicateClass = fxbank.ErrDuplicateClass

	// ErrDuplicateProperty is returned when two FX properties share an id.
	ErrDuplicateProperty = fxbank.ErrDuplicateProperty
)
