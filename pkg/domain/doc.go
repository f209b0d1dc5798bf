// Package domain holds the core types of the import wizard engine:
// sessions, steps, discovered items, plans, job batches and the structured
// error envelope shared by every renderer.
//
// The package is intentionally leaf-level: it imports nothing from the rest
// of the engine so that ports, adapters and the interpreter can all depend
// on it without cycles.
package domain
