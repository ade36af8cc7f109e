package datasource

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"jobseed/internal/datasource/file"
)

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func readAll(t *testing.T, path string, mode Mode) (string, string) {
	t.Helper()
	s, err := Open(context.Background(), file.NewLocal(path), Options{Mode: mode})
	require.NoError(t, err)
	defer s.Close()
	b, err := io.ReadAll(s)
	require.NoError(t, err)
	return string(b), s.Encoding
}

func TestOpen_Encodings(t *testing.T) {
	t.Parallel()

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().String("id,name\n1,Zoë\n")
	require.NoError(t, err)

	cases := []struct {
		name    string
		data    []byte
		want    string
		wantEnc string
	}{
		{"utf8", []byte("id,name\n1,Zoë\n"), "id,name\n1,Zoë\n", EncUTF8},
		{"utf8_bom", append([]byte{0xEF, 0xBB, 0xBF}, "id\n1\n"...), "id\n1\n", EncUTF8BOM},
		{"latin1", []byte("id,name\n1,Caf\xe9\n"), "id,name\n1,Café\n", EncLatin1},
		{"utf16le_bom", []byte(utf16), "id,name\n1,Zoë\n", EncUTF16LE},
	}
	for _, tc := range cases {
		for _, mode := range []Mode{ModeReadAll, ModeStream} {
			t.Run(tc.name+"_"+string(mode), func(t *testing.T) {
				t.Parallel()

				got, enc := readAll(t, writeFile(t, tc.data), mode)
				require.Equal(t, tc.want, got)
				require.Equal(t, tc.wantEnc, enc)
			})
		}
	}
}

func TestOpen_MissingFileIsUnreadable(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), file.NewLocal(filepath.Join(t.TempDir(), "gone.csv")), Options{})
	require.True(t, errors.Is(err, ErrUnreadableSource))
}

func TestOpen_ProgressBarDoesNotAlterBytes(t *testing.T) {
	t.Parallel()

	var bar strings.Builder
	p := writeFile(t, []byte("id\n1\n2\n"))
	s, err := Open(context.Background(), file.NewLocal(p), Options{Mode: ModeStream, Progress: &bar})
	require.NoError(t, err)
	defer s.Close()

	b, err := io.ReadAll(s)
	require.NoError(t, err)
	require.Equal(t, "id\n1\n2\n", string(b))
}

func TestTrimPartialRune(t *testing.T) {
	t.Parallel()

	full := []byte("aé")
	require.Equal(t, full, trimPartialRune(full))
	require.Equal(t, []byte("a"), trimPartialRune(full[:2]))
}

func TestFor(t *testing.T) {
	t.Parallel()

	_, isFile := For("/tmp/x.csv", nil).(*file.Local)
	require.True(t, isFile)
	_, isFile = For("https://example.test/x.csv", nil).(*file.Local)
	require.False(t, isFile)
}
