package models

import (
	"fmt"
	"sort"
	"strings"
)

// Severity ranks how actionable a finding is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the lowercase name used in reports and config files.
func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ParseSeverity converts a config/CLI string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info":
		return SeverityInfo, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "critical", "crit":
		return SeverityCritical, nil
	}
	return SeverityInfo, fmt.Errorf("unknown severity %q", s)
}

// FindingKind identifies which analyzer produced a finding.
type FindingKind string

const (
	KindParseFailure      FindingKind = "parse-failure"
	KindResolutionFailure FindingKind = "resolution-failure"
	KindTimeout           FindingKind = "timeout"
	KindImportCycle       FindingKind = "import-cycle"
	KindImportSelfLoop    FindingKind = "import-self-loop"
	KindCycleCluster      FindingKind = "cycle-cluster"
	KindDeadCode          FindingKind = "dead-code"
	KindClone             FindingKind = "clone"
	KindLowCohesion       FindingKind = "low-cohesion"
	KindDIAntiPattern     FindingKind = "di-anti-pattern"
)

// Location pins a finding to a span of source.
type Location struct {
	File      string `json:"file"`
	Module    string `json:"module,omitempty"`
	Function  string `json:"function,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (l Location) String() string {
	if l.EndLine > l.StartLine {
		return fmt.Sprintf("%s:%d-%d", l.File, l.StartLine, l.EndLine)
	}
	return fmt.Sprintf("%s:%d", l.File, l.StartLine)
}

// Finding is one reported defect. Findings are immutable value records;
// analyzers produce them and the aggregator consumes them.
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Location Location    `json:"location"`
	Related  []Location  `json:"related,omitempty"`
	Message  string      `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", f.Severity, f.Kind, f.Location, f.Message)
}

// SortFindings orders findings deterministically: file, start line, kind,
// then message. Two runs over the same input must render identically.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Location.File != b.Location.File {
			return a.Location.File < b.Location.File
		}
		if a.Location.StartLine != b.Location.StartLine {
			return a.Location.StartLine < b.Location.StartLine
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Message < b.Message
	})
}

// FilterBySeverity keeps findings at or above the given severity.
func FilterBySeverity(findings []Finding, min Severity) []Finding {
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity >= min {
			out = append(out, f)
		}
	}
	return out
}

// MaxSeverity returns the highest severity present, or -1 when empty.
func MaxSeverity(findings []Finding) (Severity, bool) {
	if len(findings) == 0 {
		return SeverityInfo, false
	}
	max := findings[0].Severity
	for _, f := range findings[1:] {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}
