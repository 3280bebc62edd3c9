// Package feature defines the durable, append-only store of face feature
// records. It includes:
//   - Record, Kind and IdentityFeatureSet models and the Store interface
//   - SQLiteStore: SQLite-backed implementation (modernc.org/sqlite)
//   - Schema helpers to create the feature_records table
//   - Typed errors for storage, serialization and missing aggregates
package feature
