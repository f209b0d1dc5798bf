package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/intakehq/intake"
	"github.com/intakehq/intake/pkg/domain"
)

// Wizard drives one interactive session from a terminal.
type Wizard struct {
	engine  *intake.Engine
	render  *Renderer
	scanner *bufio.Scanner
	out     io.Writer
}

// RunWizard starts a session over sourceRoot/sourcePath and walks it
// interactively until the user finalizes or aborts.
func RunWizard(ctx context.Context, engine *intake.Engine, sourceRoot, sourcePath string, in io.Reader, out io.Writer) error {
	w := &Wizard{
		engine:  engine,
		render:  NewRenderer(out),
		scanner: bufio.NewScanner(in),
		out:     out,
	}

	env, err := engine.StartSession(ctx, sourceRoot, sourcePath)
	if err != nil {
		w.render.Error(err)
		return err
	}

	for {
		w.render.Envelope(env)

		if env.Terminal {
			answer, err := w.ask("finalize now? [yes]")
			if err != nil {
				return err
			}
			if answer != "" && !strings.HasPrefix(strings.ToLower(answer), "y") {
				fmt.Fprintf(w.out, "session %s left unfinalized\n", env.SessionID)
				return nil
			}
			batch, err := engine.Finalize(ctx, env.SessionID, true)
			if err != nil {
				w.render.Error(err)
				return err
			}
			w.render.Batch(batch)
			return nil
		}

		payload, err := w.promptPayload(env)
		if err != nil {
			return err
		}
		next, err := engine.Submit(ctx, env.SessionID, env.StepID, payload)
		if err != nil {
			// The session did not advance; re-prompt the same step.
			w.render.Error(err)
			continue
		}
		env = next
	}
}

// promptPayload collects a payload for the rendered step: one resolution per
// pending conflict, otherwise one answer per declared field.
func (w *Wizard) promptPayload(env *domain.Envelope) (map[string]any, error) {
	payload := map[string]any{}

	if len(env.Conflicts) > 0 {
		resolutions := map[string]any{}
		for _, c := range env.Conflicts {
			answer, err := w.ask(c.TargetPath + " (overwrite/skip/rename)")
			if err != nil {
				return nil, err
			}
			resolutions[c.TargetPath] = answer
		}
		payload["resolutions"] = resolutions
		return payload, nil
	}

	for _, field := range env.Fields {
		label := field.Name
		if len(field.Options) > 0 {
			label += " (" + strings.Join(field.Options, "/") + ")"
		}
		if def, ok := field.Default.(string); ok && def != "" {
			label += " [" + def + "]"
		}
		answer, err := w.ask(label)
		if err != nil {
			return nil, err
		}
		if answer != "" {
			payload[field.Name] = answer
		}
	}
	return payload, nil
}

func (w *Wizard) ask(label string) (string, error) {
	fmt.Fprintf(w.out, "%s: ", label)
	if !w.scanner.Scan() {
		if err := w.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(w.scanner.Text()), nil
}
