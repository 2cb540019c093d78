// Package database provides SQLite persistence for WashLogic Core.
//
// It wraps database/sql with connection lifecycle management, WAL-mode
// pragmas, health checks, and an embedded-migration runner.
//
// # Usage
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// # Migrations
//
// Migration files are embedded by the migrations package and follow the
// naming convention YYYYMMDD_HHMMSS_description.{up,down}.sql. Each
// migration is applied in its own transaction and recorded in the
// schema_migrations table.
//
// # Concurrency
//
// SQLite supports a single writer. The connection pool is limited to one
// open connection; WAL mode allows concurrent readers while a write is in
// progress. Row-version checks in the repositories handle write races.
package database
