// Package database provides the gateway's SQLite store.
//
// The store holds the address recorder tables (group addresses and
// devices seen on the line). Schema changes are versioned migration files
// embedded into the binary by the top-level migrations package.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.All()); err != nil {
//	    return err
//	}
package database
