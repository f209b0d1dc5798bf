// Package cli renders the engine's generic step envelopes on a terminal and
// collects payloads for them. It consumes only the envelope: step identity
// never influences rendering beyond type-generic presentation.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"github.com/intakehq/intake/pkg/domain"
)

// Renderer writes envelopes and result tables to a terminal.
type Renderer struct {
	out   io.Writer
	color bool
}

// NewRenderer creates a Renderer. Color is enabled only when out is a
// terminal.
func NewRenderer(out io.Writer) *Renderer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{out: out, color: color}
}

func (r *Renderer) heading(s string) string {
	if r.color {
		return text.Bold.Sprint(s)
	}
	return s
}

// Envelope prints one step envelope: title, item list, pending conflicts and
// field hints.
func (r *Renderer) Envelope(env *domain.Envelope) {
	title := env.Title
	if title == "" {
		title = env.StepID
	}
	fmt.Fprintf(r.out, "\n%s  (%s)\n", r.heading(title), env.Lifecycle)

	if len(env.Items) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(r.out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"#", "Item", "Kind"})
		for i, item := range env.Items {
			t.AppendRow(table.Row{i + 1, item.Label, item.Kind})
		}
		t.Render()
	}

	if len(env.Conflicts) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(r.out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Target", "Source", "Reason"})
		for _, c := range env.Conflicts {
			t.AppendRow(table.Row{c.TargetPath, c.SourceUnit, c.Reason})
		}
		t.Render()
	}

	for _, field := range env.Fields {
		if field.Hint != "" {
			fmt.Fprintf(r.out, "  %s: %s\n", field.Name, field.Hint)
		}
	}
}

// Error prints a structured error with its details.
func (r *Renderer) Error(err error) {
	structured := domain.AsError(err)
	fmt.Fprintf(r.out, "%s: %s\n", structured.Code, structured.Message)
	for _, d := range structured.Details {
		fmt.Fprintf(r.out, "  - %s: %s\n", d.Path, d.Reason)
	}
}

// Batch prints the finalized job-request batch.
func (r *Renderer) Batch(batch *domain.JobRequestBatch) {
	fmt.Fprintf(r.out, "\n%s\n", r.heading(fmt.Sprintf("Finalized: %d job(s)", len(batch.Requests))))

	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Source", "Target", "Key"})
	for _, req := range batch.Requests {
		t.AppendRow(table.Row{req.Kind, req.SourcePath, req.TargetPath, shortKey(req.IdempotencyKey)})
	}
	t.Render()
}

// Decisions prints the append-only decision log.
func (r *Renderer) Decisions(decisions []decisionRow) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Seq", "Step", "Action"})
	for _, d := range decisions {
		t.AppendRow(table.Row{d.Seq, d.StepID, d.Action})
	}
	t.Render()
}

type decisionRow struct {
	Seq    int
	StepID string
	Action string
}

func shortKey(key string) string {
	if i := strings.Index(key, ":"); i >= 0 && len(key) > i+13 {
		return key[:i+13] + "…"
	}
	return key
}
