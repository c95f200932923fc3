// Package repositories implements SQLite persistence for download tasks and platform sessions.
//
// Key Implementations:
//   - [TaskRepository] : upsert-based persistence backing the in-memory task store
//   - [SessionRepository] : one row per platform, cookies stored sealed
//
// Repositories return [shared.ErrNotFound] wrapped with the missing key when a lookup finds nothing.
package repositories
