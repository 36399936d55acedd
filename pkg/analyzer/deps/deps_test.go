package deps

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/source"
)

func buildProject(t *testing.T, files map[string]string) *build.Project {
	t.Helper()
	src := source.NewTree(files)
	builder := build.New(build.WithSource(src), build.WithWorkers(1))
	defer builder.Close()

	project, err := builder.Analyze(context.Background(), src.Paths())
	require.NoError(t, err)
	return project
}

func analyzeFiles(t *testing.T, files map[string]string, opts ...Option) []models.Finding {
	t.Helper()
	findings, err := New(opts...).Analyze(context.Background(), buildProject(t, files))
	require.NoError(t, err)
	return findings
}

func TestTwoModuleCycle(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"alpha.py": "import beta\n",
		"beta.py":  "import alpha\n",
	})
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindImportCycle, findings[0].Kind)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
	assert.Equal(t, "import cycle: alpha -> beta -> alpha", findings[0].Message)
	assert.Equal(t, "alpha", findings[0].Location.Module)
	require.Len(t, findings[0].Related, 1)
	assert.Equal(t, "beta", findings[0].Related[0].Module)
}

func TestNoCycle(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"alpha.py": "import beta\n",
		"beta.py":  "import gamma\n",
		"gamma.py": "x = 1\n",
	})
	assert.Empty(t, findings)
}

func TestCanonicalRotation(t *testing.T) {
	// The same three-module cycle must render identically no matter
	// which module the traversal happens to start from.
	findings := analyzeFiles(t, map[string]string{
		"mid.py":   "import zed\n",
		"zed.py":   "import apex\n",
		"apex.py":  "import mid\n",
		"other.py": "import apex\n",
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "import cycle: apex -> mid -> zed -> apex", findings[0].Message)
}

func TestSelfLoopReportedSeparately(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"loner.py": "import loner\n",
	})
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindImportSelfLoop, findings[0].Kind)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "loner")
}

func TestTypeCheckingGuardSuppressed(t *testing.T) {
	files := map[string]string{
		"alpha.py": `
from typing import TYPE_CHECKING

if TYPE_CHECKING:
    import beta
`,
		"beta.py": "import alpha\n",
	}
	assert.Empty(t, analyzeFiles(t, files))

	findings := analyzeFiles(t, files, WithConditionalImports(true))
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindImportCycle, findings[0].Kind)
}

func TestReexportCycle(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"pkg/__init__.py": "from .core import run\n",
		"pkg/core.py":     "import pkg\n",
	})
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "(via re-export)")
	assert.Equal(t, "import cycle: pkg -> pkg.core -> pkg (via re-export)", findings[0].Message)
}

func TestLargeCycleIsCritical(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"m1.py": "import m2\n",
		"m2.py": "import m3\n",
		"m3.py": "import m4\n",
		"m4.py": "import m5\n",
		"m5.py": "import m1\n",
	})
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
}

func TestClusterAboveThreshold(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "import c\n",
		"c.py": "import d\n",
		"d.py": "import a\n",
	}, WithClusterThreshold(3))
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindCycleCluster, findings[0].Kind)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "4 mutually dependent modules")
}

func TestMaxCycleLengthFallsBackToCluster(t *testing.T) {
	// Every elementary cycle in this ring is longer than the cap, so
	// enumeration finds nothing; the component must still be reported.
	findings := analyzeFiles(t, map[string]string{
		"a.py": "import b\n",
		"b.py": "import c\n",
		"c.py": "import d\n",
		"d.py": "import a\n",
	}, WithMaxCycleLength(3))
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindCycleCluster, findings[0].Kind)
	assert.Contains(t, findings[0].Message, "4 mutually dependent modules")
}

func TestLongRingReportedUnderDefaults(t *testing.T) {
	// A 12-module ring sits below the cluster threshold but above the
	// cycle length cap; it must surface as a cluster, never vanish.
	files := make(map[string]string, 12)
	for i := 1; i <= 12; i++ {
		next := i%12 + 1
		files[fmt.Sprintf("m%02d.py", i)] = fmt.Sprintf("import m%02d\n", next)
	}
	findings := analyzeFiles(t, files)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindCycleCluster, findings[0].Kind)
	assert.Contains(t, findings[0].Message, "12 mutually dependent modules")
}

func TestMultipleCyclesInOneComponent(t *testing.T) {
	// a<->b and a<->c form one SCC with two elementary 2-cycles plus
	// no spurious combined cycle beyond the real 3-cycles.
	findings := analyzeFiles(t, map[string]string{
		"a.py": "import b\nimport c\n",
		"b.py": "import a\n",
		"c.py": "import a\n",
	})
	require.Len(t, findings, 2)
	assert.Equal(t, "import cycle: a -> b -> a", findings[0].Message)
	assert.Equal(t, "import cycle: a -> c -> a", findings[1].Message)
}

func TestOrderInvariance(t *testing.T) {
	files := map[string]string{
		"x.py": "import y\n",
		"y.py": "import z\n",
		"z.py": "import x\n",
	}
	first := analyzeFiles(t, files)
	second := analyzeFiles(t, files)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Message, second[i].Message)
	}
}

func TestEnumerateCyclesCanonical(t *testing.T) {
	edges := edgeSet{
		"b": {"c": build.ImportEdge{From: "b", To: "c"}},
		"c": {"a": build.ImportEdge{From: "c", To: "a"}},
		"a": {"b": build.ImportEdge{From: "a", To: "b"}},
	}
	cycles := enumerateCycles([]string{"a", "b", "c"}, edges, 10)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"a", "b", "c"}, cycles[0])
}

func TestExternalImportsIgnored(t *testing.T) {
	findings := analyzeFiles(t, map[string]string{
		"app.py": "import os\nimport requests\n",
	})
	assert.Empty(t, findings)
}
