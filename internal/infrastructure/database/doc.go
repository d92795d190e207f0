// Package database provides the SQLite connection used for persisted
// settings and the rolling command log.
//
// The connection runs in WAL mode with a busy timeout and a single open
// connection. Schema changes live as embedded .up.sql files (see the
// top-level migrations package) and are applied by Migrate at startup.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
