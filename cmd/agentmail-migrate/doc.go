// Command agentmail-migrate applies and inspects the broker's SQLite
// schema migrations (spec.md §4.1) without starting the broker
// itself. The process CLI surface for running the broker proper is an
// external collaborator this repository does not implement (spec.md
// §1); this command only owns store.Migrator's lifecycle.
package main
