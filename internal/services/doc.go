// Package services defines shared error markers and context helpers consumed by
// the pipeline stages and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, bundle names, entity ids, and stage
//     names for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified consistently (fatal configuration problems vs per-target
//     failures).
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
