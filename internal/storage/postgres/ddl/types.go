// Package ddl renders the job-board schema for Postgres.
package ddl

import gddl "jobseed/internal/ddl"

// Types maps entity field kinds onto Postgres types. Keys are BIGSERIAL
// so the reconciler can move the sequence past caller-supplied ids.
var Types = gddl.Types{
	Key:       "BIGSERIAL",
	Int:       "BIGINT",
	String:    "TEXT",
	Bool:      "BOOLEAN",
	List:      "TEXT[]",
	Timestamp: "TIMESTAMPTZ",
	Now:       "NOW()",
	True:      "TRUE",
	False:     "FALSE",
}
