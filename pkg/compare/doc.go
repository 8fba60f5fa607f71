// Package compare diffs step responses between the target and staging
// environments.
//
// Responses are normalized first: timestamps, environment metadata,
// per-request identifiers, and transport bookkeeping are stripped at every
// nesting level, so only business data is compared. Remaining differences are
// reported per field with a severity: critical for policy and pricing fields,
// warning for type-bearing fields, info for everything else. A step with no
// response on either side is marked skipped rather than different.
package compare
