// Package shell contains the infrastructure of the circulation service that sits
// between the transport (HTTP) and the circulation engine, such as retrying transient failures.
package shell
