// Package config provides the configuration of the circulation service
// for the example: Book circulation in a public library.
//
// It reads settings from the environment and builds the connections the service needs:
// Postgres via pgx.Pool, sql.DB (lib/pq) or sqlx.DB, SQLite via sql.DB (mattn/go-sqlite3),
// Redis for the per-book lock, and the OpenTelemetry providers with OTLP gRPC exporters.
//
// This package is part of the shell (infrastructure) layer.
package config
