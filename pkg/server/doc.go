// Package server is the HTTP polling surface over the execution engine.
//
// All endpoints are JSON. Starting a run returns 202 with the active run
// record; clients then poll run status and the progress snapshot while the
// engine works through the combinations in the background. Auth tokens
// arrive in the start-run body, flow to the engine, and appear in no
// response, log line, or stored record.
package server
