// Package database provides SQLite connectivity for the gateway's command log.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations, registered from an embedded filesystem
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
