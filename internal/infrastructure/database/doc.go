// Package database provides SQLite connectivity for the astrobridge event archive.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations from the embedded migrations package
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. Migrations are additive; new columns must be
// NULLABLE or carry a DEFAULT.
package database
