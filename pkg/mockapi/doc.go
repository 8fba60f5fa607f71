// Package mockapi simulates the seven portal endpoints of the insurance
// purchase flow: application submit, coupon, checkout, and the admin and
// customer policy views.
//
// The invoker mirrors the portal's data flow. Identifiers minted by earlier
// steps (application IDs, policy IDs) are read back out of the prior-step
// responses, and an injectable failure policy can force any combination to
// fail at a chosen step. Auth tokens are accepted but never echoed into
// response bodies, since bodies are persisted with step outcomes.
package mockapi
