// Package capture implements the batch writer for decoded event capture.
//
// Every event the connector decodes can be persisted to TimescaleDB,
// including decode failures with their raw frame bytes. The stored corpus
// is what the frame heuristics get tuned and regression-tested against.
//
// Writes are append-only (never update, only insert) and batched; a
// store built without a pool drops everything, so capture can stay wired
// in but disabled.
package capture
