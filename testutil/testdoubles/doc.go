// Package testdoubles contains spies for the observability interfaces of the circulation engine.
package testdoubles
