// Package adapter defines the storage-backend contract for the visitor
// management service.
//
// Every backend implements the same capability surface: connect/disconnect,
// parameterized statement execution (Run/Get/All), a raw non-parameterized
// path for DDL and USE, transactions pinned to a single connection, a
// liveness ping, and schema-lifecycle operations for isolated test runs.
//
// Backends register themselves with the global registry from their init()
// functions; callers pull them in with blank imports:
//
//	import (
//	    _ "github.com/officepass/officepass/internal/database/mysql"
//	    _ "github.com/officepass/officepass/internal/database/sqlite"
//	)
//
// Construction goes through the registry, keyed by the configuration's
// backend discriminant:
//
//	adp, err := adapter.New(adapter.BackendSQLite)
//	if err != nil {
//	    return err
//	}
//	if err := adp.Connect(ctx, cfg); err != nil {
//	    adp.Cleanup(ctx)
//	    return err
//	}
//	defer adp.Disconnect(ctx)
package adapter
