package pipeline

import (
	"bytes"
	"context"
	"testing"

	"jobseed/internal/entity"
	"jobseed/internal/fixtures"
	"jobseed/internal/parser"
	"jobseed/internal/parser/csv"
	"jobseed/internal/storage"
	"jobseed/internal/transformer"
)

// BenchmarkEndToEnd measures the normalize and batch stages on synthetic
// jobs rows. Parsing happens once up front and the flush only counts
// rows, so the numbers exclude I/O and the database.
//
//	go test -run=^$ -bench ^BenchmarkEndToEnd$ -benchmem ./internal/pipeline
func BenchmarkEndToEnd(b *testing.B) {
	ctx := context.Background()

	var buf bytes.Buffer
	if _, err := fixtures.Generate(&buf, "jobs", fixtures.Options{Rows: 5000, Seed: 1, Dirty: 0.02}); err != nil {
		b.Fatal(err)
	}
	r, err := csv.NewReader(&buf, csv.Options{Comma: ','})
	if err != nil {
		b.Fatal(err)
	}
	rows, _, err := parser.ReadAll(r)
	if err != nil {
		b.Fatal(err)
	}
	e, err := entity.Lookup("jobs")
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		plan, err := transformer.Compile(e, r.Header(), transformer.Options{PhoneRegion: "US"})
		if err != nil {
			b.Fatal(err)
		}

		in := make(chan parser.Row, 1024)
		out := make(chan transformer.Record, 1024)
		go func() {
			defer close(in)
			for _, row := range rows {
				in <- row
			}
		}()
		go func() {
			_ = transformer.TransformLoop(ctx, plan, in, out, nil)
			close(out)
		}()

		var loaded int
		flush := func(_ context.Context, _ int, batch []transformer.Record) error {
			loaded += len(batch)
			return nil
		}
		if _, err := storage.LoadBatches(ctx, out, 500, flush); err != nil {
			b.Fatalf("LoadBatches: %v", err)
		}
		if loaded == 0 {
			b.Fatal("no rows loaded")
		}
	}
	b.ReportMetric(float64(len(rows)), "rows/op")
}
