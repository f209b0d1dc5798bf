package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/intakehq/intake"
)

// ListSessions prints a table of known sessions with their current position.
func ListSessions(ctx context.Context, engine *intake.Engine, out io.Writer) error {
	ids, err := engine.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "no sessions")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Session", "Step", "Lifecycle"})
	for _, id := range ids {
		env, err := engine.State(ctx, id)
		if err != nil {
			return err
		}
		t.AppendRow(table.Row{id, env.StepID, env.Lifecycle})
	}
	t.Render()
	return nil
}

// ShowSession prints one session's current step and its decision log.
func ShowSession(ctx context.Context, engine *intake.Engine, sessionID string, out io.Writer) error {
	render := NewRenderer(out)

	env, err := engine.State(ctx, sessionID)
	if err != nil {
		render.Error(err)
		return err
	}
	fmt.Fprintf(out, "session %s\n", sessionID)
	render.Envelope(env)

	decisions, err := engine.Decisions(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(decisions) == 0 {
		fmt.Fprintln(out, "no decisions recorded")
		return nil
	}
	rows := make([]decisionRow, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, decisionRow{Seq: d.Seq, StepID: d.StepID, Action: d.Action})
	}
	render.Decisions(rows)
	return nil
}
