// Package engine wires the build pass and the analyzers into one batch
// run. Parsing fans out per file; analyzers fan out per analyzer once the
// merged project view exists.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/panbanda/auspex/pkg/analyzer"
	"github.com/panbanda/auspex/pkg/analyzer/build"
	"github.com/panbanda/auspex/pkg/analyzer/clones"
	"github.com/panbanda/auspex/pkg/analyzer/cohesion"
	"github.com/panbanda/auspex/pkg/analyzer/deadcode"
	"github.com/panbanda/auspex/pkg/analyzer/deps"
	"github.com/panbanda/auspex/pkg/analyzer/di"
	"github.com/panbanda/auspex/pkg/config"
	"github.com/panbanda/auspex/pkg/models"
	"github.com/panbanda/auspex/pkg/source"
)

// ProjectAnalyzer is one pass over the merged project view. All analyzers
// run concurrently against the same immutable Project.
type ProjectAnalyzer interface {
	Analyze(ctx context.Context, project *build.Project) ([]models.Finding, error)
}

// Engine runs the configured analyzers over a set of files.
type Engine struct {
	cfg      *config.Config
	src      source.ContentSource
	progress analyzer.ProgressFunc
}

// Option configures the engine.
type Option func(*Engine)

// WithSource sets the content source. Defaults to the filesystem.
func WithSource(src source.ContentSource) Option {
	return func(e *Engine) { e.src = src }
}

// WithProgress installs a parse-progress callback.
func WithProgress(fn analyzer.ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an engine. A nil config uses defaults.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg: cfg,
		src: source.NewFilesystem(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Report is the outcome of one run.
type Report struct {
	Findings []models.Finding `json:"findings"`
	Stats    Stats            `json:"stats"`
	// TimedOut is set when the global timeout expired; Findings then hold
	// whatever completed before the deadline.
	TimedOut bool `json:"timed_out"`
}

// Stats summarizes the analyzed project.
type Stats struct {
	Files     int           `json:"files"`
	Modules   int           `json:"modules"`
	Functions int           `json:"functions"`
	Classes   int           `json:"classes"`
	Duration  time.Duration `json:"duration_ns"`
}

// Failed reports whether findings at or above the severity threshold are
// present.
func (r *Report) Failed(min models.Severity) bool {
	for _, f := range r.Findings {
		if f.Severity >= min {
			return true
		}
	}
	return false
}

// Run builds the project and fans the enabled analyzers out over it.
func (e *Engine) Run(ctx context.Context, files []string) (*Report, error) {
	started := time.Now()
	if secs := e.cfg.Run.TimeoutSeconds; secs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	ctx = analyzer.WithTracker(ctx, analyzer.NewTracker(e.progress))

	builder := build.New(
		build.WithSource(e.src),
		build.WithWorkers(e.cfg.Run.Workers),
	)
	defer builder.Close()

	report := &Report{}
	project, err := builder.Analyze(ctx, files)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("building project: %w", err)
		}
		report.TimedOut = true
	}

	var findings []models.Finding
	if project != nil {
		findings = append(findings, project.Findings...)
		report.Stats = stats(project)

		var mu sync.Mutex
		p := pool.New().WithContext(ctx)
		for _, pa := range e.analyzers() {
			pa := pa
			p.Go(func(ctx context.Context) error {
				fs, err := pa.Analyze(ctx, project)
				mu.Lock()
				findings = append(findings, fs...)
				mu.Unlock()
				return err
			})
		}
		if err := p.Wait(); err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			report.TimedOut = true
		}
	}

	if report.TimedOut {
		findings = append(findings, models.Finding{
			Kind:     models.KindTimeout,
			Severity: models.SeverityWarning,
			Message: fmt.Sprintf("analysis aborted after %ds; results are partial",
				e.cfg.Run.TimeoutSeconds),
		})
	}

	models.SortFindings(findings)
	report.Findings = findings
	report.Stats.Files = len(files)
	report.Stats.Duration = time.Since(started)
	return report, nil
}

// analyzers instantiates the enabled analyzers with their configured
// thresholds.
func (e *Engine) analyzers() []ProjectAnalyzer {
	var out []ProjectAnalyzer
	if e.cfg.Analysis.Cycles {
		out = append(out, deps.New(
			deps.WithMaxCycleLength(e.cfg.Cycles.MaxCycleLength),
			deps.WithClusterThreshold(e.cfg.Cycles.ClusterThreshold),
			deps.WithConditionalImports(e.cfg.Cycles.IncludeConditional),
		))
	}
	if e.cfg.Analysis.DeadCode {
		out = append(out, deadcode.New())
	}
	if e.cfg.Analysis.Clones {
		out = append(out, clones.New(
			clones.WithMinLines(e.cfg.Clones.MinLines),
			clones.WithMinStatements(e.cfg.Clones.MinStatements),
			clones.WithSizeTolerance(e.cfg.Clones.SizeTolerance),
			clones.WithBoilerplateRatio(e.cfg.Clones.BoilerplateRatio),
		))
	}
	if e.cfg.Analysis.Cohesion {
		out = append(out, cohesion.New(
			cohesion.WithLowThreshold(e.cfg.Cohesion.LowThreshold),
			cohesion.WithMediumThreshold(e.cfg.Cohesion.MediumThreshold),
		))
	}
	if e.cfg.Analysis.DI {
		out = append(out, di.New(
			di.WithMaxConstructorParams(e.cfg.DI.MaxConstructorParams),
		))
	}
	return out
}

func stats(p *build.Project) Stats {
	s := Stats{Modules: len(p.Modules)}
	for _, m := range p.Modules {
		s.Functions += len(m.Functions)
		s.Classes += len(m.Classes)
		for _, cls := range m.Classes {
			s.Functions += len(cls.Methods)
		}
	}
	return s
}
