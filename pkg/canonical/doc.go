// Package canonical converts structured values into byte-identical,
// deterministically ordered representations and hashes them into versioned
// fingerprints. Every identity key in the engine (model, discovery, config,
// idempotency) is derived here.
package canonical
