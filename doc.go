/*
Package intake is a deterministic import wizard engine: a multi-phase
workflow interpreter that walks an import session from source discovery to a
canonical, idempotent batch of processing job requests.

It separates the workflow model (a structural definition merged with a
non-structural tuning configuration into a frozen snapshot) from the live
session state and from side-effects (storage, job queue, callable
operations), which are consumed through ports.

# Concept

The engine renders one step at a time as a generic envelope and accepts one
payload at a time. Every submission is validated against the frozen
snapshot; accepted inputs advance the session and are persisted atomically,
rejected inputs leave it untouched. Finalizing a completed session compiles
the job-request batch exactly once, keyed so that re-running an identical
session cannot enqueue duplicate work.

# Key Features

  - Deterministic compilation: identical snapshot, discovery set and answers
    produce a byte-identical job batch.
  - Hexagonal architecture: the interpreter core is decoupled from adapters
    (filesystem or in-memory storage, SQLite queue, Redis locking, HTTP).
  - Durable sessions: every transition is persisted, with an append-only
    decision log, so sessions survive restarts.
  - Conflict gating: target collisions divert the session to a resolution
    step before any job can be created.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/intakehq/intake"
	)

	func main() {
		engine, err := intake.New(intake.WithRoots(map[string]string{
			"engine":  ".intake",
			"source":  "/srv/downloads",
			"library": "/srv/library",
		}))
		if err != nil {
			log.Fatal(err)
		}

		ctx := context.Background()
		env, err := engine.StartSession(ctx, "source", "incoming")
		if err != nil {
			log.Fatal(err)
		}

		// Render env, collect a payload, then:
		env, err = engine.Submit(ctx, env.SessionID, env.StepID, map[string]any{
			"expression": "all",
		})
		if err != nil {
			log.Fatal(err)
		}
	}

Interactive and HTTP front ends are provided by the intake command; see
cmd/intake.
*/
package intake
