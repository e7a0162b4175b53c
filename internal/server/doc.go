// Package server implements the HTTP side of the deployhook webhook gateway.
//
// This package provides:
//   - A single POST endpoint that authenticates push webhooks with an
//     HMAC-SHA256 signature (X-Hub-Signature-256)
//   - Branch filtering against the configured ref
//   - Synchronous dispatch of the deploy command, reporting its outcome
//     in the HTTP response
//   - Optional per-IP rate limiting and structured request logging
//
// Every other method or path gets an empty 404. Failures are converted to
// HTTP statuses inside the handler; a bad request or a failed deploy never
// stops the listener.
package server
