package build

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/source"
)

func analyze(t *testing.T, files map[string]string) *Project {
	t.Helper()
	src := source.NewTree(files)
	a := New(WithSource(src), WithWorkers(1))
	defer a.Close()

	project, err := a.Analyze(context.Background(), src.Paths())
	require.NoError(t, err)
	return project
}

func module(t *testing.T, p *Project, id string) *Module {
	t.Helper()
	m, ok := p.ByID[id]
	require.True(t, ok, "module %q not built", id)
	return m
}

func TestModuleIdentifiers(t *testing.T) {
	p := analyze(t, map[string]string{
		"top.py":              "x = 1\n",
		"pkg/__init__.py":     "",
		"pkg/mod.py":          "y = 2\n",
		"pkg/sub/__init__.py": "",
		"pkg/sub/deep.py":     "z = 3\n",
	})

	require.Len(t, p.Modules, 5)
	assert.NotNil(t, p.ByID["top"])
	assert.NotNil(t, p.ByID["pkg"])
	assert.NotNil(t, p.ByID["pkg.mod"])
	assert.NotNil(t, p.ByID["pkg.sub"])
	assert.NotNil(t, p.ByID["pkg.sub.deep"])
	assert.True(t, p.ByID["pkg"].IsPackageInit)
	assert.False(t, p.ByID["pkg.mod"].IsPackageInit)

	// Modules are sorted by identifier.
	for i := 1; i < len(p.Modules); i++ {
		assert.Less(t, p.Modules[i-1].ID, p.Modules[i].ID)
	}
}

func TestAbsoluteImportResolution(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py":     "import pkg.mod\n",
		"pkg/mod.py": "",
	})

	app := module(t, p, "app")
	require.Len(t, app.Imports, 1)
	e := app.Imports[0]
	assert.Equal(t, "app", e.From)
	assert.Equal(t, "pkg.mod", e.To)
	assert.False(t, e.External)
	assert.Equal(t, 1, e.Line)
}

func TestRelativeImportResolution(t *testing.T) {
	p := analyze(t, map[string]string{
		"pkg/__init__.py": "",
		"pkg/a.py":        "from .b import helper\n",
		"pkg/b.py":        "def helper():\n    pass\n",
		"pkg/sub/c.py":    "from ..b import helper\n",
	})

	a := module(t, p, "pkg.a")
	require.Len(t, a.Imports, 1)
	assert.Equal(t, "pkg.b", a.Imports[0].To)

	c := module(t, p, "pkg.sub.c")
	require.Len(t, c.Imports, 1)
	assert.Equal(t, "pkg.b", c.Imports[0].To)
}

func TestRelativeImportEscapingRoot(t *testing.T) {
	p := analyze(t, map[string]string{
		"top.py": "from ...nowhere import thing\n",
	})

	var failures []models.Finding
	for _, f := range p.Findings {
		if f.Kind == models.KindResolutionFailure {
			failures = append(failures, f)
		}
	}
	require.Len(t, failures, 1)
	assert.Equal(t, models.SeverityInfo, failures[0].Severity)
}

func TestStdlibImportsExternalWithoutFinding(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": "import os\nimport json\nfrom collections import OrderedDict\n",
	})

	app := module(t, p, "app")
	require.Len(t, app.Imports, 3)
	for _, e := range app.Imports {
		assert.True(t, e.External, "stdlib import %q", e.To)
	}
	assert.Empty(t, p.Findings)
}

func TestThirdPartyImportRecordsFailure(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": "import requests\n",
	})

	app := module(t, p, "app")
	require.Len(t, app.Imports, 1)
	assert.True(t, app.Imports[0].External)

	require.Len(t, p.Findings, 1)
	assert.Equal(t, models.KindResolutionFailure, p.Findings[0].Kind)
	assert.Equal(t, models.SeverityInfo, p.Findings[0].Severity)
}

func TestLongestKnownPrefixResolution(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py":              "import pkg.sub.missing\n",
		"pkg/__init__.py":     "",
		"pkg/sub/__init__.py": "",
	})

	app := module(t, p, "app")
	require.Len(t, app.Imports, 1)
	assert.Equal(t, "pkg.sub", app.Imports[0].To)
	assert.False(t, app.Imports[0].External)
}

func TestConditionalImportMergedWithUnconditional(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": `
from typing import TYPE_CHECKING

import helper

if TYPE_CHECKING:
    import helper
`,
		"helper.py": "",
	})

	app := module(t, p, "app")
	var helperEdges []ImportEdge
	for _, e := range app.Imports {
		if e.To == "helper" {
			helperEdges = append(helperEdges, e)
		}
	}
	require.Len(t, helperEdges, 1, "duplicate edges are merged")
	assert.False(t, helperEdges[0].Conditional, "an unconditional import wins")
}

func TestTypeCheckingGuardVariants(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": `
import typing
from typing import TYPE_CHECKING

if TYPE_CHECKING:
    import a

if typing.TYPE_CHECKING:
    import b

if TYPE_CHECKING and True:
    import c
`,
		"a.py": "", "b.py": "", "c.py": "",
	})

	app := module(t, p, "app")
	conditional := map[string]bool{}
	for _, e := range app.Imports {
		conditional[e.To] = e.Conditional
	}
	assert.True(t, conditional["a"])
	assert.True(t, conditional["b"])
	assert.True(t, conditional["c"])
}

func TestReexportDetection(t *testing.T) {
	p := analyze(t, map[string]string{
		"pkg/__init__.py": `
__all__ = ["run"]

from .core import run
from .util import internal_helper
`,
		"pkg/core.py": "def run():\n    pass\n",
		"pkg/util.py": "def internal_helper():\n    pass\n",
	})

	init := module(t, p, "pkg")
	byTarget := map[string]ImportEdge{}
	for _, e := range init.Imports {
		byTarget[e.To] = e
	}
	assert.True(t, byTarget["pkg.core"].Reexport, "name listed in __all__")
	assert.False(t, byTarget["pkg.util"].Reexport, "name not exported")
	assert.Equal(t, []string{"run"}, init.ExportList)
}

func TestWildcardReexport(t *testing.T) {
	p := analyze(t, map[string]string{
		"pkg/__init__.py": "from .core import *\n",
		"pkg/core.py":     "",
	})

	init := module(t, p, "pkg")
	require.Len(t, init.Imports, 1)
	assert.True(t, init.Imports[0].Reexport)
}

func TestSyntaxErrorIsolatesFile(t *testing.T) {
	p := analyze(t, map[string]string{
		"bad.py":  "def broken(:\n",
		"good.py": "import other\n",
		"other.py": `
def f():
    return 1
`,
	})

	require.Len(t, p.Findings, 1)
	assert.Equal(t, models.KindParseFailure, p.Findings[0].Kind)
	assert.Equal(t, "bad.py", p.Findings[0].Location.File)

	assert.Nil(t, p.ByID["bad"])
	assert.NotNil(t, p.ByID["good"])
	assert.NotNil(t, p.ByID["other"])
}

func TestFunctionFacts(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": `
counter = 0

class Service:
    def __init__(self, db):
        self.db = db
        self.cache = {}

    def bump(self):
        global counter
        counter += 1
        self.db.save(counter)
`,
	})

	app := module(t, p, "app")
	require.Len(t, app.Classes, 1)
	cls := app.Classes[0]
	require.Len(t, cls.Methods, 2)

	ctor := cls.Constructor()
	require.NotNil(t, ctor)
	assert.Equal(t, []string{"cache", "db"}, ctor.SelfAttrs)
	assert.Equal(t, "Service.__init__", ctor.QualifiedName())

	bump := cls.Methods[1]
	assert.Equal(t, []string{"counter"}, bump.GlobalDecls)
	assert.Contains(t, bump.LoadedNames, "counter")
	require.Len(t, bump.Calls, 1)
	assert.Equal(t, "self.db.save", bump.Calls[0].Name)

	assert.Equal(t, []string{"counter"}, app.TopLevelVars)
}

func TestTopLevelVarsSkipConstantsAndDunders(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": `
__version__ = "1.0"
MAX_SIZE = 10
registry = {}
`,
	})

	app := module(t, p, "app")
	assert.Equal(t, []string{"registry"}, app.TopLevelVars)
}

func TestDuplicateModuleIdentifier(t *testing.T) {
	p := analyze(t, map[string]string{
		"pkg.py":          "",
		"pkg/__init__.py": "",
	})

	require.Len(t, p.Modules, 1)
	require.Len(t, p.Findings, 1)
	assert.Equal(t, models.KindResolutionFailure, p.Findings[0].Kind)
	assert.Equal(t, models.SeverityWarning, p.Findings[0].Severity)

	// The winner is path-deterministic, not a scheduling accident.
	assert.Equal(t, "pkg.py", p.ByID["pkg"].Path)
	assert.Equal(t, "pkg/__init__.py", p.Findings[0].Location.File)
}

func TestDuplicateModuleIdentifierWinnerIgnoresParseOrder(t *testing.T) {
	// Pad the path-first file so it finishes parsing well after its rival
	// under parallel workers; the dedup winner must not change.
	var big strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&big, "def f%d():\n    return %d\n", i, i)
	}
	src := source.NewTree(map[string]string{
		"dup.py":          big.String(),
		"dup/__init__.py": "",
	})
	a := New(WithSource(src), WithWorkers(4))
	defer a.Close()

	p, err := a.Analyze(context.Background(), src.Paths())
	require.NoError(t, err)

	require.Len(t, p.Modules, 1)
	assert.Equal(t, "dup.py", p.ByID["dup"].Path)
	require.Len(t, p.Findings, 1)
	assert.Equal(t, "dup/__init__.py", p.Findings[0].Location.File)
}

func TestProjectAccessors(t *testing.T) {
	p := analyze(t, map[string]string{
		"app.py": `
def top():
    return 1

class C:
    def m(self):
        return 2
`,
	})

	fns := p.AllFunctions()
	require.Len(t, fns, 2)
	assert.Equal(t, "top", fns[0].Name)
	assert.Equal(t, "C.m", fns[1].QualifiedName())

	prints := p.Fingerprints()
	assert.Len(t, prints, 3, "two bodies plus the class declaration")
}
