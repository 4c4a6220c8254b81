package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSource(t *testing.T) {
	src, err := ParseSource("data/standard_jan25frl.txt", "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, month(2025, time.January), src.Date)
	assert.Equal(t, "standard_jan25frl.txt@2025-01-01", src.String())

	_, err = ParseSource("x.txt", "01/01/2025")
	require.Error(t, err)
	var se *SourceError
	assert.True(t, errors.As(err, &se))
}

func TestSource_Check(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(file, []byte("header\n"), 0o644))

	assert.NoError(t, Source{Path: file, Date: month(2025, time.January)}.Check())

	tests := []struct {
		name string
		src  Source
		want string
	}{
		{"missing file", Source{Path: filepath.Join(dir, "nope.txt"), Date: month(2025, time.January)}, "no such file"},
		{"directory", Source{Path: dir, Date: month(2025, time.January)}, "not a regular file"},
		{"no date", Source{Path: file}, "missing date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Check()
			require.Error(t, err)
			var se *SourceError
			require.True(t, errors.As(err, &se))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDefaultPreset(t *testing.T) {
	sources := DefaultPreset("historical_data")
	require.Len(t, sources, 13)
	assert.Equal(t, filepath.Join("historical_data", "standard_oct24frl.txt"), sources[0].Path)
	assert.Equal(t, month(2024, time.October), sources[0].Date)
	assert.Equal(t, filepath.Join("historical_data", "standard_oct25frl.txt"), sources[12].Path)
	assert.Equal(t, month(2025, time.October), sources[12].Date)

	for i := 1; i < len(sources); i++ {
		assert.True(t, sources[i].Date.After(sources[i-1].Date))
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sources:
  - file: standard_feb25frl.txt
    date: 2025-02-01
  - file: /abs/standard_jan25frl.txt
    date: "2025-01-01"
`), 0o644))

	sources, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "standard_feb25frl.txt"), sources[0].Path)
	assert.Equal(t, month(2025, time.February), sources[0].Date)
	assert.Equal(t, "/abs/standard_jan25frl.txt", sources[1].Path)
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", filepath.Join(dir, "nope.yaml"), "read manifest"},
		{"bad yaml", write("bad.yaml", "sources: [\n"), "parse manifest"},
		{"empty", write("empty.yaml", "sources: []\n"), "lists no sources"},
		{"no file", write("nofile.yaml", "sources:\n  - date: 2025-01-01\n"), "has no file"},
		{"bad date", write("baddate.yaml", "sources:\n  - file: a.txt\n    date: jan 2025\n"), "invalid date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadManifest(tt.path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
