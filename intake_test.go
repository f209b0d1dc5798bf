package intake_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakehq/intake"
	"github.com/intakehq/intake/internal/adapters/memory"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/workflow"
)

func TestNewRejectsBrokenWorkflow(t *testing.T) {
	// A definition missing the confirmation step must fail at startup.
	def := workflow.DefaultDefinition()
	var steps []workflow.StepDef
	for _, sd := range def.Steps {
		if sd.ID != domain.StepConfirmFinalize {
			steps = append(steps, sd)
		}
	}
	def.Steps = steps

	_, err := intake.New(intake.WithDefinition(def))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.AsError(err).Code)
}

func TestEngineEndToEnd(t *testing.T) {
	storage := memory.NewStorage("engine", "source", "library")
	storage.Seed("source", "incoming/song.mp3", []byte("audio"))

	disabled := false
	tun := &workflow.Tuning{
		SchemaVersion: 1,
		TargetRoot:    "library",
		Steps: map[string]workflow.StepTuning{
			"scan_options": {Enabled: &disabled},
			"probe_media":  {Enabled: &disabled},
			"tag_defaults": {Enabled: &disabled},
		},
	}

	engine, err := intake.New(intake.WithStorage(storage), intake.WithTuning(tun))
	require.NoError(t, err)
	ctx := context.Background()

	env, err := engine.StartSession(ctx, "source", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	for _, s := range []struct {
		step    string
		payload map[string]any
	}{
		{domain.StepSelectSources, map[string]any{"expression": "all"}},
		{domain.StepSelectUnits, map[string]any{"expression": "all"}},
		{domain.StepComputePlan, nil},
		{domain.StepSetConflictPolicy, map[string]any{"policy": domain.PolicyAsk}},
		{domain.StepConfirmFinalize, map[string]any{"confirmed": "yes"}},
	} {
		env, err = engine.Submit(ctx, id, s.step, s.payload)
		require.NoError(t, err, "step %s", s.step)
	}
	require.True(t, env.Terminal)

	batch, err := engine.Finalize(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 1)
	assert.Equal(t, "incoming/song.mp3", batch.Requests[0].TargetPath)

	decisions, err := engine.Decisions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, decisions, 5)

	ids, err := engine.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}
