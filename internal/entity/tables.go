package entity

import (
	"fmt"

	"jobseed/internal/normalize"
)

// ExperienceBuckets maps the numeric 1-4 source scale (and the bucket
// names themselves) onto experience_level values.
var ExperienceBuckets = map[string]string{
	"1": "entry", "entry": "entry", "junior": "entry",
	"2": "mid", "mid": "mid", "intermediate": "mid",
	"3": "senior", "senior": "senior",
	"4": "executive", "executive": "executive", "lead": "executive",
}

// DefaultExperience is stored for unrecognized experience values.
const DefaultExperience = "mid"

var companyStatus = map[string]string{"pending": "pending", "approved": "approved"}

func init() {
	register(Entity{
		Name:        "categories",
		Table:       "categories",
		Key:         "id",
		Wholesale:   true,
		Identifying: []string{"name"},
		Fields: []Field{
			{Column: "id", Kind: KindInt},
			{Column: "name", Kind: KindString, Required: true},
			{Column: "description", Kind: KindString},
		},
	})

	register(Entity{
		Name:        "companies",
		Table:       "companies",
		Key:         "id",
		TouchColumn: "updated_at",
		Identifying: []string{"name"},
		Fields: []Field{
			{Column: "id", Kind: KindInt},
			{Column: "name", Kind: KindString, Required: true},
			{Column: "country", Kind: KindString},
			{Column: "state", Kind: KindString},
			{Column: "city", Kind: KindString},
			{Column: "location", Kind: KindString},
			{Column: "zip_code", Kind: KindString},
			{Column: "website", Kind: KindWebsite},
			{Column: "phone", Kind: KindPhone},
			{Column: "status", Kind: KindBucket, Buckets: companyStatus, Default: "pending"},
			{Column: "approved_by", Kind: KindInt},
			{Column: "user_id", Kind: KindInt},
			{Column: "logo_url", Kind: KindString},
			{Column: "followers", Kind: KindInt, Default: int64(0)},
			{Column: "industry", Kind: KindString},
			{Column: "size", Kind: KindString},
			{Column: "description", Kind: KindString},
		},
		Placeholder: func(id int64) map[string]any {
			return map[string]any{
				"id":        id,
				"name":      fmt.Sprintf("Company %d", id),
				"status":    "pending",
				"followers": int64(0),
			}
		},
	})

	register(Entity{
		Name:        "jobs",
		Table:       "jobs",
		Key:         "id",
		TouchColumn: "updated_at",
		Identifying: []string{"title", "company_id"},
		Fields: []Field{
			{Column: "id", Kind: KindInt},
			{Column: "company_id", Kind: KindInt, Required: true},
			{Column: "recruiter_id", Kind: KindInt},
			{Column: "category_id", Kind: KindInt},
			{Column: "title", Kind: KindString, Required: true},
			{Column: "description", Kind: KindString},
			{Column: "requirements", Kind: KindString},
			{Column: "country", Kind: KindString},
			{Column: "state", Kind: KindString},
			{Column: "city", Kind: KindString},
			{Column: "zip_code", Kind: KindString},
			{Column: "location", Kind: KindString},
			{Column: "status", Kind: KindString},
			{Column: "employment_type", Kind: KindString, Default: "full-time"},
			{Column: "experience_level", Kind: KindBucket, Buckets: ExperienceBuckets, Default: DefaultExperience},
			{Column: "salary", Kind: KindString, DeriveFrom: []string{"salary_min", "salary_max"}},
			{Column: "skills", Kind: KindList},
			{Column: "is_active", Kind: KindBool},
		},
		Parents: []ParentRef{
			{Column: "company_id", Parent: "companies", OnMissing: MissingSkip, AllowPlaceholder: true},
			{Column: "category_id", Parent: "categories", OnMissing: MissingNull},
		},
		Derive: deriveSalary,
	})

	register(Entity{
		Name:        "vendors",
		Table:       "vendors",
		Key:         "id",
		TouchColumn: "updated_at",
		Identifying: []string{"name", "email"},
		Fields: []Field{
			{Column: "id", Kind: KindInt},
			{Column: "company_id", Kind: KindInt, Required: true},
			{Column: "name", Kind: KindString, Required: true},
			{Column: "email", Kind: KindEmail},
			{Column: "services", Kind: KindString},
			{Column: "status", Kind: KindString, Default: "pending"},
			{Column: "created_by", Kind: KindInt},
		},
		Parents: []ParentRef{
			{Column: "company_id", Parent: "companies", OnMissing: MissingSkip},
		},
	})
}

// deriveSalary builds the free-text salary from salary_min/salary_max
// when the row has no salary of its own.
func deriveSalary(raw map[string]string, vals map[string]any) {
	if _, ok := vals["salary"]; ok {
		return
	}
	lo, okLo := normalize.Int(raw["salary_min"])
	hi, okHi := normalize.Int(raw["salary_max"])
	switch {
	case okLo && okHi && lo != hi:
		vals["salary"] = fmt.Sprintf("%d - %d", lo, hi)
	case okLo:
		if okHi {
			vals["salary"] = fmt.Sprintf("%d", lo)
		} else {
			vals["salary"] = fmt.Sprintf("%d+", lo)
		}
	case okHi:
		vals["salary"] = fmt.Sprintf("up to %d", hi)
	}
}
