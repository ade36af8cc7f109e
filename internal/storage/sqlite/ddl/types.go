// Package ddl renders the job-board schema for SQLite.
package ddl

import gddl "jobseed/internal/ddl"

// Types maps entity field kinds onto SQLite storage classes. An INTEGER
// primary key aliases the rowid, so omitted ids are generated as
// MAX(id)+1. Lists are stored as JSON text.
var Types = gddl.Types{
	Key:       "INTEGER",
	Int:       "INTEGER",
	String:    "TEXT",
	Bool:      "BOOLEAN",
	List:      "TEXT",
	Timestamp: "TIMESTAMP",
	Now:       "CURRENT_TIMESTAMP",
	True:      "1",
	False:     "0",
}
