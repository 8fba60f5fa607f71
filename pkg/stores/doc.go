// Package stores provides durable persistence for run and combination
// progress.
//
// The FileStore keeps one directory per run with run.json plus one JSON
// document per execution ID. Every write is atomic: the new document is
// written to a temp file in the same directory and renamed over the target,
// so a crash mid-write leaves the previous complete document in place and a
// concurrent reader never observes a torn record. Step outcome writes are
// idempotent upserts keyed by (run, execution, environment, step).
//
// A progress snapshot read while a run executes may trail the most recent
// write by one step, but is always internally consistent: steps one through
// k terminal, the rest pending, with no gaps.
package stores
