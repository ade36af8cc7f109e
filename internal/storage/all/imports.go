// Package all registers every built-in storage backend. Import it for
// side effects:
//
//	import _ "jobseed/internal/storage/all"
//
// After that, storage.New accepts the kinds "postgres", "sqlite" and
// "mssql", and storage.EnsureSchema can create the job-board tables on
// each of them.
package all

import (
	_ "jobseed/internal/storage/mssql"
	_ "jobseed/internal/storage/postgres"
	_ "jobseed/internal/storage/sqlite"
)
