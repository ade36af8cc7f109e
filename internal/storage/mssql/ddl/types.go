// Package ddl renders the job-board schema for SQL Server.
package ddl

import gddl "jobseed/internal/ddl"

// Types maps entity field kinds onto SQL Server types. Lists are stored
// as JSON in NVARCHAR(MAX).
var Types = gddl.Types{
	Key:       "BIGINT IDENTITY(1,1)",
	Int:       "BIGINT",
	String:    "NVARCHAR(MAX)",
	Bool:      "BIT",
	List:      "NVARCHAR(MAX)",
	Timestamp: "DATETIME2",
	Now:       "SYSUTCDATETIME()",
	True:      "1",
	False:     "0",
}
