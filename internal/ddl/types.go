package ddl

// ColumnDef describes a single column. Name is unquoted; quoting happens
// at render time. Default is a raw SQL expression.
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// ForeignKeyDef is a single-column reference to another table's key.
type ForeignKeyDef struct {
	Name      string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string // CASCADE, SET NULL, or empty
}

// TableDef holds the table name (optionally schema.table), its ordered
// columns, and its foreign keys.
type TableDef struct {
	FQN         string
	Columns     []ColumnDef
	ForeignKeys []ForeignKeyDef
}

// Types maps entity field kinds onto one backend's SQL types.
type Types struct {
	Key       string // generated integer primary key
	Int       string
	String    string
	Bool      string
	List      string
	Timestamp string

	// Now is the current-timestamp default expression.
	Now string

	// True and False are boolean default literals.
	True, False string
}
