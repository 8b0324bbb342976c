// Package httpapi exposes the circulation engine over HTTP with gin.
//
// Handlers only decode requests, call the engine and map its error kinds to status codes:
// validation 400, not found 404, conflict 409, inconsistent state and store failures 500.
// Read operations are retried on transient store failures.
package httpapi
