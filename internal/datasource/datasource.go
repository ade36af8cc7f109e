// Package datasource opens import inputs and hands back decoded UTF-8
// bytes.
//
// A location is either a local path or an http(s) URL. Opening also
// settles the text encoding: UTF-8 (BOM stripped), UTF-16 when a BOM
// says so, otherwise Windows-1252, and raw bytes as the last resort.
package datasource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"jobseed/internal/datasource/file"
	"jobseed/internal/datasource/httpds"
)

// ErrUnreadableSource wraps every failure to open or decode an input.
var ErrUnreadableSource = errors.New("source unreadable")

// Source is anything that can be opened for reading.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sizer is implemented by sources that know their length up front.
type Sizer interface {
	Size() (int64, error)
}

// For picks the source implementation for location.
func For(location string, client *httpds.Client) Source {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		if client == nil {
			client = httpds.NewClient(httpds.Config{})
		}
		return client.Source(location)
	}
	return file.NewLocal(strings.TrimPrefix(location, "file://"))
}

// Mode selects how the input is consumed.
type Mode string

const (
	// ModeReadAll loads the whole input before parsing.
	ModeReadAll Mode = "read_all"
	// ModeStream parses from a buffered reader with bounded memory.
	ModeStream Mode = "stream"
)

// Encodings reported by Stream.Encoding.
const (
	EncUTF8    = "utf-8"
	EncUTF8BOM = "utf-8-bom"
	EncUTF16LE = "utf-16le"
	EncUTF16BE = "utf-16be"
	EncLatin1  = "windows-1252"
	EncRaw     = "raw"
)

const sniffSize = 64 * 1024

// Options tune Open.
type Options struct {
	Mode Mode

	// Progress, when non-nil, receives a byte progress bar.
	Progress io.Writer
}

// Stream is an opened, decoded input.
type Stream struct {
	io.Reader
	Encoding string
	closer   io.Closer
}

// Close releases the underlying source.
func (s *Stream) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Open opens src and wraps it in the decoder implied by its leading bytes.
func Open(ctx context.Context, src Source, opt Options) (*Stream, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}

	var in io.Reader = rc
	if opt.Progress != nil {
		size := int64(-1)
		if sz, ok := src.(Sizer); ok {
			if n, err := sz.Size(); err == nil {
				size = n
			}
		}
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(opt.Progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetDescription("reading"),
			progressbar.OptionClearOnFinish(),
		)
		in = io.TeeReader(rc, bar)
	}

	if opt.Mode == ModeStream {
		r, enc := sniffStream(bufio.NewReaderSize(in, sniffSize))
		return &Stream{Reader: r, Encoding: enc, closer: rc}, nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: read: %v", ErrUnreadableSource, err)
	}
	decoded, enc := Decode(data)
	return &Stream{Reader: bytes.NewReader(decoded), Encoding: enc, closer: rc}, nil
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts a whole input to UTF-8 and names the encoding used.
func Decode(data []byte) ([]byte, string) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return data[len(bomUTF8):], EncUTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		enc := EncUTF16LE
		if bytes.HasPrefix(data, bomUTF16BE) {
			enc = EncUTF16BE
		}
		out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
		if err != nil {
			return data, EncRaw
		}
		return out, enc
	case utf8.Valid(data):
		return data, EncUTF8
	}
	out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	if err != nil {
		return data, EncRaw
	}
	return out, EncLatin1
}

// sniffStream makes the same decision as Decode from the buffered head
// of the stream. Bytes after the head are trusted to share its encoding.
func sniffStream(br *bufio.Reader) (io.Reader, string) {
	head, _ := br.Peek(sniffSize)
	switch {
	case bytes.HasPrefix(head, bomUTF8):
		_, _ = br.Discard(len(bomUTF8))
		return br, EncUTF8BOM
	case bytes.HasPrefix(head, bomUTF16LE):
		return transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder())), EncUTF16LE
	case bytes.HasPrefix(head, bomUTF16BE):
		return transform.NewReader(br, unicode.BOMOverride(unicode.UTF8.NewDecoder())), EncUTF16BE
	case utf8.Valid(trimPartialRune(head)):
		return br, EncUTF8
	}
	return transform.NewReader(br, charmap.Windows1252.NewDecoder()), EncLatin1
}

// trimPartialRune drops an incomplete UTF-8 sequence cut off by the
// peek window.
func trimPartialRune(b []byte) []byte {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return b[:i]
			}
			break
		}
	}
	return b
}
