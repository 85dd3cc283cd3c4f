//go:build integration

package integration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meigma/cook"
	"github.com/meigma/cook/internal/sar"
	"github.com/meigma/cook/internal/testutil"
)

const (
	phaseID = "5e1f0000-0000-4000-8000-000000000001"
	rateID  = "5e1f0000-0000-4000-8000-000000000002"
	floatID = "1a0cc0c6-9f3f-4e24-aa3e-115c1dd2d798"
)

const componentDefinition = `<root version="3">` +
	`<phases><object><data id="` + phaseID + `" name="Birth" initialduration="1"/></object></phases>` +
	`<components><component name="Emitter"><properties>` +
	`<property name="Rate" id="` + rateID + `"><definition type="RateType" typeid="` + floatID + `">` +
	`<data><datum platform="" value="1"/></data></definition></property>` +
	`</properties></component></components></root>`

const sparkEffect = `<effect id="5e1f0000-0000-4000-8000-0000000000e1" version="2">` +
	`<phases><object><data definitionid="` + phaseID + `" duration="1" playcount="1"/></object></phases>` +
	`<trackgroups><trackgroup name="main"><track name="sparks">` +
	`<component class="Emitter" start="0" end="1"><properties>` +
	`<property id="` + rateID + `"><data><datum platform="" value="4"/></data></property>` +
	`</properties></component></track></trackgroup></trackgroups></effect>`

const packages = `{
	"Platform": "PC",
	"Packages": [
		{
			"Name": "Scripts",
			"Root": "Authored",
			"Extensions": [".lbc"],
			"NonDependencySearchPatterns": ["*.*"],
			"CompressFiles": true,
			"Obfuscate": true,
			"IncludeInSourceControl": true,
		},
		{
			"Name": "Effects",
			"Root": "Authored",
			"Extensions": [".fxb"],
			"NonDependencySearchPatterns": ["*.*"],
		},
	],
}`

// newProject writes a project with scripts, one effect and a package
// configuration for both.
func newProject(t *testing.T) string {
	t.Helper()
	base := testutil.NewProject(t, map[string]string{
		"Authored/Scripts/Main.lua":     "return require('ai.brain')\n",
		"Authored/Scripts/AI/Brain.lua": "return { think = function() end }\n",
		"Authored/Effects/Fx_Spark.xfx": sparkEffect,
		"AppComponentDefinition.xcd":    componentDefinition,
	})
	testutil.WriteConfig(t, base, "Packages.json", packages)
	return base
}

func newCooker(t *testing.T, base string, opts ...cook.Option) *cook.Cooker {
	t.Helper()
	opts = append([]cook.Option{
		cook.WithPackageFile("Packages.json"),
		cook.WithBuild(7, 4242),
	}, opts...)
	c, err := cook.New(base, cook.PC, opts...)
	require.NoError(t, err)
	return c
}

func archivePath(base, name string) string {
	return filepath.Join(base, "Data", "Config", name+".sar")
}

func openArchive(t *testing.T, base, name string) *sar.Reader {
	t.Helper()
	r, err := sar.Open(archivePath(base, name))
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// touch rewrites a source and moves its modification time forward so the
// next cook sees it as changed.
func touch(t *testing.T, name, body string) {
	t.Helper()
	testutil.WriteFile(t, name, body)
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(name, later, later))
}
