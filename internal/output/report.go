package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/panbanda/auspex/pkg/engine"
	"github.com/panbanda/auspex/pkg/models"
)

// FindingsReport renders an engine run as text, markdown or JSON.
type FindingsReport struct {
	Run *engine.Report
}

func (r *FindingsReport) RenderData() any {
	return r.Run
}

func (r *FindingsReport) RenderText(w io.Writer, colored bool) error {
	if len(r.Run.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		r.renderSummary(w)
		return nil
	}

	table := r.table(colored)
	if err := table.RenderText(w, colored); err != nil {
		return err
	}
	r.renderSummary(w)
	if r.Run.TimedOut {
		if colored {
			color.New(color.FgYellow).Fprintln(w, "Run timed out; results are partial.")
		} else {
			fmt.Fprintln(w, "Run timed out; results are partial.")
		}
	}
	return nil
}

func (r *FindingsReport) RenderMarkdown(w io.Writer) error {
	fmt.Fprintf(w, "# Analysis Report\n\n")
	if len(r.Run.Findings) == 0 {
		fmt.Fprintln(w, "No findings.")
		fmt.Fprintln(w)
	} else {
		if err := r.table(false).RenderMarkdown(w); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "%d modules, %d functions, %d classes analyzed in %s.\n",
		r.Run.Stats.Modules, r.Run.Stats.Functions, r.Run.Stats.Classes,
		r.Run.Stats.Duration.Round(time.Millisecond))
	if r.Run.TimedOut {
		fmt.Fprintln(w, "\n**Run timed out; results are partial.**")
	}
	return nil
}

func (r *FindingsReport) table(colored bool) *Table {
	rows := make([][]string, 0, len(r.Run.Findings))
	bySeverity := map[models.Severity]int{}
	for _, f := range r.Run.Findings {
		bySeverity[f.Severity]++
		sev := f.Severity.String()
		if colored {
			sev = SeverityColor(f.Severity, sev)
		}
		rows = append(rows, []string{
			sev,
			string(f.Kind),
			locationCell(f.Location),
			f.Message,
		})
	}
	return &Table{
		Title:   "Findings",
		Headers: []string{"Severity", "Kind", "Location", "Detail"},
		Rows:    rows,
		Footer: []string{
			"", "",
			fmt.Sprintf("%d total", len(r.Run.Findings)),
			fmt.Sprintf("%d critical, %d warning, %d info",
				bySeverity[models.SeverityCritical],
				bySeverity[models.SeverityWarning],
				bySeverity[models.SeverityInfo]),
		},
		Data: r.Run,
	}
}

func (r *FindingsReport) renderSummary(w io.Writer) {
	fmt.Fprintf(w, "%d modules, %d functions, %d classes analyzed in %s.\n",
		r.Run.Stats.Modules, r.Run.Stats.Functions, r.Run.Stats.Classes,
		r.Run.Stats.Duration.Round(time.Millisecond))
}

func locationCell(loc models.Location) string {
	var b strings.Builder
	b.WriteString(loc.File)
	if loc.StartLine > 0 {
		if loc.EndLine > loc.StartLine {
			fmt.Fprintf(&b, ":%d-%d", loc.StartLine, loc.EndLine)
		} else {
			fmt.Fprintf(&b, ":%d", loc.StartLine)
		}
	}
	if loc.Function != "" {
		fmt.Fprintf(&b, " (%s)", loc.Function)
	}
	return b.String()
}
