// Package cook is an offline asset cooking pipeline.
//
// Cook tasks convert authored source files into compact, platform
// specific runtime formats, and a package task bundles the cooked output
// into compressed, optionally obfuscated .sar archives (or zip files).
// A [Cooker] wires the tasks, the cook database, source control and the
// cross-process lock together.
//
// # Quick Start
//
// Cook everything out of date for PC, then build the packages:
//
//	c, err := cook.New("/work/game", cook.PC,
//	    cook.WithPackageFile("Packages.json"),
//	    cook.WithBuild(3, 41234),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := c.CookAll(ctx); err != nil {
//	    return err
//	}
//
// Cook a single file:
//
//	err = c.CookSingle(ctx, "content://Authored/Effects/Spark.fxb")
//
// # Tasks
//
// Tasks run in priority order: scripts, 2D animations and FX banks are
// cooked first, and packaging runs last so it sees every other task's
// output. Each task cooks only files whose sources, dependencies or data
// version changed since the last cook.
//
// # Local builds
//
// [WithLocal] selects a fast developer build: the fastest compression
// level, no compression dictionaries, and packages marked
// ExcludeFromLocal are skipped.
package cook
