package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"jobseed/internal/checkpoint"
	"jobseed/internal/config"
	"jobseed/internal/datasource"
	"jobseed/internal/datasource/file"
	"jobseed/internal/parser"
	"jobseed/internal/parser/csv"
	"jobseed/internal/parser/xlsx"
)

// source is an opened input with its parser positioned after the header.
type source struct {
	stream   *datasource.Stream
	reader   parser.Reader
	location string
	closers  []io.Closer
}

func (s *source) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openSource opens the input and reads the header. Every failure is
// reported as datasource.ErrUnreadableSource or parser.ErrMissingHeader so
// callers can tell a bad file from a bad database.
func openSource(ctx context.Context, p config.Pipeline, d Deps) (*source, error) {
	loc := p.Source.Location()
	src := datasource.For(loc, d.HTTP)

	stream, err := datasource.Open(ctx, src, datasource.Options{
		Mode:     datasource.Mode(p.Source.Mode),
		Progress: d.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", loc, err)
	}
	s := &source{stream: stream, location: loc, closers: []io.Closer{stream}}

	headerMap := p.Parser.Options.StringMap("header_map")
	switch p.Parser.Kind {
	case "xlsx":
		x, err := xlsx.NewReader(stream, xlsx.Options{
			Sheet:     p.Parser.Options.String("sheet", ""),
			HeaderMap: headerMap,
		})
		if err != nil {
			_ = s.Close()
			return nil, wrapHeaderErr(loc, err)
		}
		s.reader = x
		s.closers = append(s.closers, x)
	default:
		c, err := csv.NewReader(stream, csv.Options{
			Comma:      p.Parser.Options.Rune("comma", ','),
			KeepSpace:  p.Parser.Options.Bool("keep_space", false),
			LazyQuotes: p.Parser.Options.Bool("lazy_quotes", false),
			HeaderMap:  headerMap,
		})
		if err != nil {
			_ = s.Close()
			return nil, wrapHeaderErr(loc, err)
		}
		s.reader = c
	}
	return s, nil
}

func wrapHeaderErr(loc string, err error) error {
	if errors.Is(err, parser.ErrMissingHeader) {
		return fmt.Errorf("read header %s: %w", loc, err)
	}
	return fmt.Errorf("read header %s: %w: %v", loc, datasource.ErrUnreadableSource, err)
}

// fingerprint identifies the source content for checkpoints. Local files
// are hashed; remote sources are identified by URL.
func fingerprint(ctx context.Context, loc string) (string, error) {
	src := datasource.For(loc, nil)
	local, ok := src.(*file.Local)
	if !ok {
		return checkpoint.FingerprintString(loc), nil
	}
	rc, err := local.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", datasource.ErrUnreadableSource, err)
	}
	defer rc.Close()
	return checkpoint.Fingerprint(rc)
}
