package clones

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/source"
)

func analyzeSource(t *testing.T, files map[string]string, opts ...Option) []models.Finding {
	t.Helper()
	src := source.NewTree(files)
	builder := build.New(build.WithSource(src), build.WithWorkers(1))
	defer builder.Close()

	project, err := builder.Analyze(context.Background(), src.Paths())
	require.NoError(t, err)

	findings, err := New(opts...).Analyze(context.Background(), project)
	require.NoError(t, err)
	return findings
}

func TestRenamedCopyDetected(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
def collect_large(items, limit):
    result = []
    for item in items:
        if item > limit:
            result.append(item)
    return result

def keep_above(values, floor):
    out = []
    for v in values:
        if v > floor:
            out.append(v)
    return out
`})
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindClone, findings[0].Kind)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "duplicated")
	assert.Contains(t, findings[0].Message, "collect_large")
	assert.Contains(t, findings[0].Message, "keep_above")
	require.Len(t, findings[0].Related, 1)
}

func TestLiteralChangeStillExactClone(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
def retry_short(op):
    attempts = 0
    while attempts < 3:
        if op():
            return True
        attempts += 1
    return False

def retry_long(op):
    attempts = 0
    while attempts < 10:
        if op():
            return True
        attempts += 1
    return False
`})
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
}

func TestCrossFileClone(t *testing.T) {
	body := `
def process(records, threshold):
    kept = []
    for r in records:
        if r.score > threshold:
            kept.append(r)
    return kept
`
	findings := analyzeSource(t, map[string]string{"a.py": body, "b.py": body})
	require.Len(t, findings, 1)
	assert.Equal(t, "a.py", findings[0].Location.File)
	assert.Equal(t, "b.py", findings[0].Related[0].File)
}

func TestIterativeVersusRecursive(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
def total_iter(values):
    acc = 0
    for v in values:
        acc += v
    return acc

def total_rec(values):
    if not values:
        return 0
    head = values[0]
    return head + total_rec(values[1:])
`})
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "structurally similar")
}

func TestSmallBodiesNotReported(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
def get_a(self):
    return self.a

def get_b(self):
    return self.b
`})
	assert.Empty(t, findings)
}

func TestDataClassesNotReported(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
from dataclasses import dataclass

@dataclass
class Point:
    x: int
    y: int
    label: str
    weight: float

@dataclass
class Offset:
    dx: int
    dy: int
    name: str
    scale: float
`})
	assert.Empty(t, findings)
}

func TestUnrelatedFunctionsNotReported(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
def render(template, context):
    parts = []
    for key in context:
        parts.append(template.replace(key, context[key]))
    return "".join(parts)

def parse_config(path):
    with open(path) as fh:
        raw = fh.read()
    try:
        return loads(raw)
    except ValueError:
        raise ConfigError(path)
`})
	assert.Empty(t, findings)
}

func TestCopiedMethodBodiesMatch(t *testing.T) {
	findings := analyzeSource(t, map[string]string{"app.py": `
class CsvLoader:
    def load(self, path):
        rows = []
        for line in self.read(path):
            if line.strip():
                rows.append(line.split(","))
        return rows

class TsvLoader:
    def load(self, path):
        rows = []
        for line in self.read(path):
            if line.strip():
                rows.append(line.split("\t"))
        return rows
`})
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "CsvLoader.load")
	assert.Contains(t, findings[0].Message, "TsvLoader.load")
}

func TestMinLinesOption(t *testing.T) {
	files := map[string]string{"app.py": `
def first(a, b):
    c = a + b
    d = c * a
    e = d - b
    return e

def second(x, y):
    z = x + y
    w = z * x
    v = w - y
    return v
`}
	assert.Len(t, analyzeSource(t, files), 1)
	assert.Empty(t, analyzeSource(t, files, WithMinLines(7)))
}

func TestSizeTolerance(t *testing.T) {
	assert.True(t, sizeComparable(50, 100, 0.5))
	assert.True(t, sizeComparable(100, 50, 0.5))
	assert.False(t, sizeComparable(40, 100, 0.5))
	assert.False(t, sizeComparable(0, 100, 0.5))
}
