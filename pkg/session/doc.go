// Package session provides durable conversation transcripts: the data
// model, a pluggable key-value store contract with in-memory and SQLite
// implementations, and a Manager exposing lifecycle operations (create,
// fetch-or-create, append, truncate-to-budget, delete).
package session
