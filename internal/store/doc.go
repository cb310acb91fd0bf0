// Package store persists Google credentials and the single-use OAuth state
// ledger in SQLite.
//
// Refresh tokens arrive already encrypted; this package treats them as
// opaque strings and never decrypts anything itself. The state ledger
// enforces single use at the database level: the state value is the primary
// key, and consumption is a select-and-delete inside one transaction.
package store
