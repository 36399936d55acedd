package di

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

func TestConcreteTypeAnnotation(t *testing.T) {
	findings := analyzeSource(t, `
class Service:
    def __init__(self, repo: PostgresRepository):
        self.repo = repo
`)
	require.Len(t, findings, 1)
	assert.Equal(t, models.KindDIAntiPattern, findings[0].Kind)
	assert.Equal(t, models.SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "PostgresRepository")
}

func TestAbstractTypesNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Service:
    def __init__(self, repo: AbstractRepository, bus: EventBusProtocol, log: LoggerInterface, clock: IClock):
        self.repo = repo
        self.bus = bus
        self.log = log
        self.clock = clock
`)
	assert.Empty(t, findings)
}

func TestValueTypesNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Config:
    def __init__(self, host: str, port: int, tags: list[str], limit: Optional[int]):
        self.host = host
        self.port = port
        self.tags = tags
        self.limit = limit
`)
	assert.Empty(t, findings)
}

func TestOptionalConcreteTypeFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Service:
    def __init__(self, cache: Optional[RedisCache]):
        self.cache = cache
`)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "RedisCache")
}

func TestOverInjection(t *testing.T) {
	findings := analyzeSource(t, `
class Everything:
    def __init__(self, a, b, c, d, e, f, g, h, i):
        self.a = a
`)
	require.Len(t, findings, 1)
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "9 parameters")
}

func TestExactlyAtLimitNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Bounded:
    def __init__(self, a, b, c, d, e):
        self.a = a
`)
	assert.Empty(t, findings)
}

func TestMaxParamsOption(t *testing.T) {
	code := `
class Pair:
    def __init__(self, a, b, c):
        self.a = a
`
	assert.Empty(t, analyzeSource(t, code))
	findings := analyzeSource(t, code, WithMaxConstructorParams(2))
	require.Len(t, findings, 1)
}

func TestVariadicParamsNotCounted(t *testing.T) {
	findings := analyzeSource(t, `
class Flexible:
    def __init__(self, a, b, c, d, e, *args, **kwargs):
        self.a = a
`)
	assert.Empty(t, findings)
}

func TestInternalConstruction(t *testing.T) {
	findings := analyzeSource(t, `
class Service:
    def __init__(self):
        self.db = DatabaseConnection()
        self.cache = cache.RedisCache()
`)
	require.Len(t, findings, 2)
	assert.Contains(t, findings[0].Message, "DatabaseConnection")
	assert.Contains(t, findings[1].Message, "RedisCache")
	assert.Equal(t, models.SeverityWarning, findings[0].Severity)
}

func TestExceptionConstructionNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Service:
    def __init__(self, db):
        if db is None:
            raise ValueError("db required")
        self.db = db
`)
	assert.Empty(t, findings)
}

func TestGlobalDeclaration(t *testing.T) {
	findings := analyzeSource(t, `
current = None

class Session:
    def activate(self):
        global current
        current = self
`)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "global declaration")
	assert.Contains(t, findings[0].Message, "current")
}

func TestModuleStateRead(t *testing.T) {
	findings := analyzeSource(t, `
settings = {}

class Handler:
    def process(self, request):
        return settings[request.key]
`)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "module-level mutable state")
	assert.Contains(t, findings[0].Message, "settings")
}

func TestConstantsNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
MAX_RETRIES = 3

class Client:
    def fetch(self):
        return self.session.get_with_retries(MAX_RETRIES)
`)
	assert.Empty(t, findings)
}

func TestServiceLocator(t *testing.T) {
	findings := analyzeSource(t, `
class Worker:
    def __init__(self, container):
        self.db = container.get("database")
        self.log = container.resolve("logger")
`)
	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, models.SeverityWarning, f.Severity)
		assert.Contains(t, f.Message, "inject the dependency")
	}
}

func TestSingletonAccessor(t *testing.T) {
	findings := analyzeSource(t, `
class Job:
    def run(self):
        db = Database.get_instance()
        return db.query()
`)
	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].Message, "get_instance")
}

func TestPlainDictGetNotFlagged(t *testing.T) {
	findings := analyzeSource(t, `
class Reader:
    def field(self, record, name):
        return record.get(name)
`)
	assert.Empty(t, findings)
}

func TestMultipleFindingsAccumulate(t *testing.T) {
	findings := analyzeSource(t, `
class Kitchen:
    def __init__(self, sink: SteelSink, a, b, c, d, e, f):
        self.sink = sink
        self.stove = GasStove()
`)
	require.Len(t, findings, 3)
	kinds := map[models.Severity]int{}
	for _, f := range findings {
		kinds[f.Severity]++
	}
	assert.Equal(t, 1, kinds[models.SeverityInfo])
	assert.Equal(t, 2, kinds[models.SeverityWarning])
}
