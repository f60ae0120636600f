// Package database provides SQLite connectivity for Stream Lights.
//
// This package manages:
//   - Database connection with WAL mode
//   - Schema migrations loaded from an fs.FS (see the migrations package)
//   - Transaction helper
//
// The database stores the Hue application key and Twitch OAuth tokens, so
// the file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
