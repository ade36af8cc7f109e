// Package fixtures writes synthetic source files for the importable
// entities. Output uses the same headers the importer reads, so a
// generated file can be loaded as-is for load tests and demos.
//
// A fraction of rows can be made dirty to exercise the skip paths:
// blank required names, references to companies that do not exist and
// unrecognized experience levels.
package fixtures

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jszwec/csvutil"

	"jobseed/internal/entity"
)

// Options control generation.
type Options struct {
	Rows int

	// Seed makes output reproducible; 0 picks a random seed.
	Seed int64

	// StartID is the first id written; 0 means 1.
	StartID int64

	// Companies is the id range [1, Companies] that jobs and vendors
	// reference; 0 means Rows.
	Companies int

	// Categories is the id range jobs pick category_id from; 0 means 10.
	Categories int

	// Dirty is the fraction of rows, 0 to 1, given one defect.
	Dirty float64
}

// Stats describes a generated file.
type Stats struct {
	Rows  int
	Dirty int
}

// Category is one categories row.
type Category struct {
	ID          int64  `csv:"id"`
	Name        string `csv:"name"`
	Description string `csv:"description"`
}

// Company is one companies row.
type Company struct {
	ID         int64  `csv:"id"`
	Name       string `csv:"name"`
	Country    string `csv:"country"`
	State      string `csv:"state"`
	City       string `csv:"city"`
	Location   string `csv:"location"`
	ZipCode    string `csv:"zip_code"`
	Website    string `csv:"website"`
	Phone      string `csv:"phone"`
	Status     string `csv:"status"`
	ApprovedBy string `csv:"approved_by"`
	UserID     string `csv:"user_id"`
	LogoURL    string `csv:"logo_url"`
}

// Job is one jobs row.
type Job struct {
	ID              int64  `csv:"id"`
	CompanyID       int64  `csv:"company_id"`
	Title           string `csv:"title"`
	Requirements    string `csv:"requirements"`
	CategoryID      string `csv:"category_id"`
	Description     string `csv:"description"`
	Country         string `csv:"country"`
	State           string `csv:"state"`
	City            string `csv:"city"`
	ZipCode         string `csv:"zip_code"`
	Status          string `csv:"status"`
	EmploymentType  string `csv:"employment_type"`
	ExperienceLevel string `csv:"experience_level"`
	SalaryMin       string `csv:"salary_min"`
	SalaryMax       string `csv:"salary_max"`
	Skills          string `csv:"skills"`
	IsActive        string `csv:"is_active"`
}

// Vendor is one vendors row.
type Vendor struct {
	ID        int64  `csv:"id"`
	CompanyID int64  `csv:"company_id"`
	Name      string `csv:"name"`
	Email     string `csv:"email"`
	Services  string `csv:"services"`
}

var (
	employmentTypes = []string{"full-time", "part-time", "contract", "internship"}
	jobStatuses     = []string{"open", "closed", "draft"}
	skillPool       = []string{"go", "sql", "postgres", "kubernetes", "react", "python", "aws", "terraform", "excel", "sales"}
	categoryNames   = []string{"Engineering", "Design", "Sales", "Marketing", "Finance", "Operations", "Support", "Legal", "People", "Data"}
)

// Generate writes opt.Rows rows of entity name to w as CSV with a header.
func Generate(w io.Writer, name string, opt Options) (Stats, error) {
	if _, err := entity.Lookup(name); err != nil {
		return Stats{}, err
	}
	if opt.Rows < 0 {
		return Stats{}, fmt.Errorf("fixtures: rows must be >= 0, got %d", opt.Rows)
	}
	if opt.Dirty < 0 || opt.Dirty > 1 {
		return Stats{}, fmt.Errorf("fixtures: dirty must be within [0,1], got %v", opt.Dirty)
	}
	if opt.StartID == 0 {
		opt.StartID = 1
	}
	if opt.Companies == 0 {
		opt.Companies = max(opt.Rows, 1)
	}
	if opt.Categories == 0 {
		opt.Categories = 10
	}

	g := &gen{f: gofakeit.New(opt.Seed), opt: opt}
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)

	var row func(id int64, dirty bool) any
	switch name {
	case "categories":
		row = g.category
	case "companies":
		row = g.company
	case "jobs":
		row = g.job
	case "vendors":
		row = g.vendor
	default:
		return Stats{}, fmt.Errorf("fixtures: no generator for %q", name)
	}

	var st Stats
	if opt.Rows == 0 {
		if err := enc.EncodeHeader(row(opt.StartID, false)); err != nil {
			return st, err
		}
	}
	for i := 0; i < opt.Rows; i++ {
		dirty := g.f.Float64() < opt.Dirty
		if err := enc.Encode(row(opt.StartID+int64(i), dirty)); err != nil {
			return st, fmt.Errorf("fixtures: encode row %d: %w", i+1, err)
		}
		st.Rows++
		if dirty {
			st.Dirty++
		}
	}
	cw.Flush()
	return st, cw.Error()
}

type gen struct {
	f   *gofakeit.Faker
	opt Options
}

func (g *gen) category(id int64, dirty bool) any {
	c := Category{
		ID:          id,
		Name:        categoryNames[int(id-1)%len(categoryNames)],
		Description: g.f.Sentence(8),
	}
	if int(id) > len(categoryNames) {
		c.Name = fmt.Sprintf("%s %d", c.Name, id)
	}
	if dirty {
		c.Name = "NULL"
	}
	return c
}

func (g *gen) company(id int64, dirty bool) any {
	addr := g.f.Address()
	c := Company{
		ID:       id,
		Name:     g.f.Company(),
		Country:  addr.Country,
		State:    addr.State,
		City:     addr.City,
		Location: addr.Street,
		ZipCode:  addr.Zip,
		Website:  strings.TrimPrefix(g.f.URL(), "https://"),
		Phone:    g.f.Phone(),
		Status:   g.f.RandomString([]string{"pending", "approved", ""}),
		UserID:   strconv.Itoa(g.f.Number(1, 500)),
		LogoURL:  g.f.ImageURL(128, 128),
	}
	if c.Status == "approved" {
		c.ApprovedBy = strconv.Itoa(g.f.Number(1, 20))
	}
	if dirty {
		c.Name = ""
	}
	return c
}

func (g *gen) job(id int64, dirty bool) any {
	addr := g.f.Address()
	lo := g.f.Number(30, 150) * 1000
	j := Job{
		ID:              id,
		CompanyID:       int64(g.f.Number(1, g.opt.Companies)),
		Title:           g.f.JobTitle(),
		Requirements:    g.f.Sentence(12),
		Description:     g.f.Paragraph(1, 3, 12, " "),
		Country:         addr.Country,
		State:           addr.State,
		City:            addr.City,
		ZipCode:         addr.Zip,
		Status:          g.f.RandomString(jobStatuses),
		EmploymentType:  g.f.RandomString(employmentTypes),
		ExperienceLevel: strconv.Itoa(g.f.Number(1, 4)),
		SalaryMin:       strconv.Itoa(lo),
		SalaryMax:       strconv.Itoa(lo + g.f.Number(0, 60)*1000),
		Skills:          g.skills(),
		IsActive:        strconv.FormatBool(g.f.Bool()),
	}
	if g.f.Number(1, 5) > 1 {
		j.CategoryID = strconv.Itoa(g.f.Number(1, g.opt.Categories))
	}
	if dirty {
		switch g.f.Number(0, 2) {
		case 0:
			j.Title = "NULL"
		case 1:
			j.CompanyID = int64(g.opt.Companies + g.f.Number(1000, 9999))
		default:
			j.ExperienceLevel = "guru"
		}
	}
	return j
}

func (g *gen) vendor(id int64, dirty bool) any {
	v := Vendor{
		ID:        id,
		CompanyID: int64(g.f.Number(1, g.opt.Companies)),
		Name:      g.f.Company(),
		Email:     g.f.Email(),
		Services:  g.f.BuzzWord() + " " + g.f.BS(),
	}
	if dirty {
		if g.f.Bool() {
			v.Name = ""
		} else {
			v.CompanyID = int64(g.opt.Companies + g.f.Number(1000, 9999))
		}
	}
	return v
}

func (g *gen) skills() string {
	n := g.f.Number(1, 4)
	picked := make([]string, 0, n)
	seen := map[string]bool{}
	for len(picked) < n {
		s := g.f.RandomString(skillPool)
		if !seen[s] {
			seen[s] = true
			picked = append(picked, s)
		}
	}
	return strings.Join(picked, ",")
}
