package cohesion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/source"
)

func analyzeSource(t *testing.T, code string, opts ...Option) []models.Finding {
	t.Helper()
	src := source.NewTree(map[string]string{"app.py": code})
	builder := build.New(build.WithSource(src), build.WithWorkers(1))
	defer builder.Close()

	project, err := builder.Analyze(context.Background(), []string{"app.py"})
	require.NoError(t, err)

	findings, err := New(opts...).Analyze(context.Background(), project)
	require.NoError(t, err)
	return findings
}

func TestCohesiveClassNotReported(t *testing.T) {
	findings := analyzeSource(t, `
class Counter:
    def __init__(self):
        self.count = 0

    def increment(self):
        self.count += 1

    def reset(self):
        self.count = 0

    def value(self):
        return self.count
`)
	assert.Empty(t, findings)
}

func TestTwoComponentsBelowThresholdNotReported(t *testing.T) {
	findings := analyzeSource(t, `
class Pair:
    def set_a(self, v):
        self.a = v

    def get_a(self):
        return self.a

    def set_b(self, v):
        self.b = v

    def get_b(self):
        return self.b
`)
	assert.Empty(t, findings)
}

func TestThreeComponentsReportedAsWarning(t *testing.T) {
	findings := analyzeSource(t, `
class Grab:
    def set_a(self, v):
        self.a = v

    def get_a(self):
        return self.a

    def set_b(self, v):
        self.b = v

    def get_b(self):
        return self.b

    def set_c(self, v):
        self.c = v

    def get_c(self):
        return self.c
`)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindLowCohesion, findings[0].Kind)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "3 unrelated method groups")
	assert.Equal(t, "Grab", findings[0].Location.Function)
}

func TestManyComponentsCritical(t *testing.T) {
	findings := analyzeSource(t, `
class Junk:
    def a(self):
        self.fa = 1

    def b(self):
        self.fb = 2

    def c(self):
        self.fc = 3

    def d(self):
        self.fd = 4

    def e(self):
        self.fe = 5

    def f(self):
        self.ff = 6
`)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityCritical, findings[0].Severity)
}

func TestMethodCallsJoinComponents(t *testing.T) {
	// validate touches no attribute that save touches, but save calls
	// validate, so they belong together.
	findings := analyzeSource(t, `
class Form:
    def validate(self):
        return self.schema.check()

    def save(self, data):
        if self.validate():
            self.store.write(data)
`, WithLowThreshold(1))
	assert.Empty(t, findings)
}

func TestStaticMethodsExcluded(t *testing.T) {
	findings := analyzeSource(t, `
class Tools:
    def __init__(self):
        self.state = {}

    def update(self, k, v):
        self.state[k] = v

    @staticmethod
    def helper_one(x):
        return x + 1

    @staticmethod
    def helper_two(x):
        return x - 1

    @classmethod
    def build(cls):
        return cls()
`)
	assert.Empty(t, findings)
}

func TestPropertiesCounted(t *testing.T) {
	findings := analyzeSource(t, `
class Report:
    def __init__(self):
        self.rows = []
        self.title = ""

    @property
    def count(self):
        return len(self.rows)

    @property
    def heading(self):
        return self.title.upper()
`)
	assert.Empty(t, findings)
}

func TestSingleMethodClassSkipped(t *testing.T) {
	findings := analyzeSource(t, `
class One:
    def only(self):
        return 1
`)
	assert.Empty(t, findings)
}

func TestThresholdOptions(t *testing.T) {
	code := `
class Pair:
    def set_a(self, v):
        self.a = v

    def set_b(self, v):
        self.b = v
`
	assert.Empty(t, analyzeSource(t, code))
	findings := analyzeSource(t, code, WithLowThreshold(1))
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
}
