// Package engine provides the core types and the sequential execution engine
// for PolicyProbe sanity runs.
//
// # Overview
//
// A run resolves the Category/Product/Plan catalog into an ordered list of
// combinations and executes them strictly one at a time. Each combination
// goes through the fixed 7-step purchase flow twice: first against the target
// environment, then against the staging reference environment, for 14 calls
// total.
//
// # Core Domain Types
//
//   - Run: one sanity run over a resolved combination list
//   - CombinationResult: the durable record of one combination execution
//   - EnvironmentProgress: the seven step outcomes for one environment
//   - StepOutcome: one step's terminal record (status, capture, timing)
//   - StepRequest / StepResult: the invocation envelope
//   - ComparisonReport: the target-vs-staging field comparison
//
// # Step State Machine
//
// Every step starts pending and reaches exactly one terminal status:
//
//   - succeed: invoked, success flag set, 2xx status code
//   - failed: invoked, anything else
//   - can_not_proceed: never invoked, because an earlier step failed in the
//     same environment or a required portal token was missing
//
// Once a step fails, no later step in that environment is invoked. The two
// environments gate independently: a target failure does not skip staging.
//
// # Capability Boundaries
//
// The engine consumes three interfaces: StepInvoker performs a step,
// ProgressStore persists progress atomically and idempotently, and Comparator
// builds the comparison report. Failure simulation is injected as a
// FailurePolicy; the runner contains no special-cased combinations.
//
// # Error Classification
//
//   - config: invalid hierarchy or selection, surfaces synchronously
//   - invocation: a step invocation failed or panicked
//   - storage: a progress write or read failed
//   - permanent: non-recoverable internal errors
//
// Storage failures degrade gracefully: each write is retried once, then the
// run continues with in-memory progress only.
package engine
