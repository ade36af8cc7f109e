package ddl

import (
	"fmt"
	"strconv"

	"jobseed/internal/entity"
)

// JobApplicationsTable is never loaded; it exists so reseeds can cascade
// into it.
const JobApplicationsTable = "job_applications"

// FromEntity derives the table definition of e. Entities with a touch
// column also get created_at and updated_at timestamps.
func FromEntity(e entity.Entity, t Types) TableDef {
	def := TableDef{FQN: e.Table}

	for _, f := range e.Fields {
		col := ColumnDef{
			Name:     f.Column,
			SQLType:  sqlType(f.Kind, t),
			Nullable: !f.Required,
			Default:  literal(f.Default, t),
		}
		if f.Column == e.Key {
			col.SQLType = t.Key
			col.PrimaryKey = true
			col.Nullable = false
		}
		def.Columns = append(def.Columns, col)
	}

	if e.TouchColumn != "" {
		def.Columns = append(def.Columns,
			ColumnDef{Name: "created_at", SQLType: t.Timestamp, Default: t.Now},
			ColumnDef{Name: e.TouchColumn, SQLType: t.Timestamp, Default: t.Now},
		)
	}

	for _, p := range e.Parents {
		parent, err := entity.Lookup(p.Parent)
		if err != nil {
			continue
		}
		onDelete := "CASCADE"
		if p.OnMissing == entity.MissingNull {
			onDelete = "SET NULL"
		}
		def.ForeignKeys = append(def.ForeignKeys, ForeignKeyDef{
			Name:      fmt.Sprintf("%s_%s_fkey", e.Table, p.Column),
			Column:    p.Column,
			RefTable:  parent.Table,
			RefColumn: parent.Key,
			OnDelete:  onDelete,
		})
	}
	return def
}

// JobApplications defines the dependent applications table.
func JobApplications(t Types) TableDef {
	return TableDef{
		FQN: JobApplicationsTable,
		Columns: []ColumnDef{
			{Name: "id", SQLType: t.Key, PrimaryKey: true},
			{Name: "job_id", SQLType: t.Int},
			{Name: "applicant_name", SQLType: t.String, Nullable: true},
			{Name: "applicant_email", SQLType: t.String, Nullable: true},
			{Name: "status", SQLType: t.String, Default: "'pending'"},
			{Name: "created_at", SQLType: t.Timestamp, Default: t.Now},
		},
		ForeignKeys: []ForeignKeyDef{{
			Name: "job_applications_job_id_fkey", Column: "job_id",
			RefTable: "jobs", RefColumn: "id", OnDelete: "CASCADE",
		}},
	}
}

// Schema returns every table in creation order, parents first.
func Schema(t Types) []TableDef {
	var out []TableDef
	for _, e := range entity.Ordered() {
		out = append(out, FromEntity(e, t))
	}
	return append(out, JobApplications(t))
}

func sqlType(k entity.Kind, t Types) string {
	switch k {
	case entity.KindInt:
		return t.Int
	case entity.KindBool:
		return t.Bool
	case entity.KindList:
		return t.List
	default:
		return t.String
	}
}

func literal(v any, t Types) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return "'" + x + "'"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return t.True
		}
		return t.False
	default:
		return fmt.Sprintf("'%v'", x)
	}
}
