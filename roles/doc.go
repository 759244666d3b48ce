// Package roles resolves caller identity and capability for the pipeline.
//
// The Guard interface is the boundary to whatever issues credentials;
// the pipeline only consumes its decision. Three roles exist:
//
//   - rater: claims pending tasks and submits responses
//   - reviewer: approves or edits responses under review
//   - ops: read visibility everywhere, batch ingestion, manual claim release
//
// StaticGuard is the bundled implementation: a default-deny token table
// loaded from a TOML file, sufficient for deployments that terminate real
// authentication upstream and for tests.
package roles
