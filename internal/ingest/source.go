package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fide-ratings/internal/fidefile"
)

// DateLayout is the layout of source dates on the command line and in
// manifests.
const DateLayout = "2006-01-02"

// Source is one rating list file and the date its observations belong to.
type Source struct {
	Path string    `json:"path"`
	Date time.Time `json:"date"`
}

func (s Source) String() string {
	return fmt.Sprintf("%s@%s", filepath.Base(s.Path), s.Date.Format(DateLayout))
}

// SourceError reports a source that cannot be ingested. It is returned
// before anything is written.
type SourceError struct {
	Source Source
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("ingest: source %s: %v", e.Source.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ParseSource builds a Source from a path and a YYYY-MM-DD date.
func ParseSource(path, date string) (Source, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return Source{}, &SourceError{Source: Source{Path: path}, Err: eris.Wrapf(err, "invalid date %q (want YYYY-MM-DD)", date)}
	}
	return Source{Path: path, Date: d}, nil
}

// Check verifies the file exists and is a regular file, and that the date is
// set.
func (s Source) Check() error {
	if s.Date.IsZero() {
		return &SourceError{Source: s, Err: eris.New("missing date")}
	}
	fi, err := os.Stat(s.Path)
	if err != nil {
		return &SourceError{Source: s, Err: err}
	}
	if !fi.Mode().IsRegular() {
		return &SourceError{Source: s, Err: eris.New("not a regular file")}
	}
	return nil
}

// MonthlySources returns one source per month from from to to inclusive,
// each pointing at the standard list file for that month inside dir and
// dated the first of the month.
func MonthlySources(dir string, from, to time.Time) []Source {
	months := fidefile.MonthsBetween(from, to)
	sources := make([]Source, 0, len(months))
	for _, m := range months {
		sources = append(sources, Source{Path: filepath.Join(dir, fidefile.TextFileName(m)), Date: m})
	}
	return sources
}

// Preset bounds of the historical backfill.
var (
	PresetFrom = time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)
	PresetTo   = time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC)
)

// DefaultPreset returns the thirteen monthly lists from October 2024 to
// October 2025 inside dir.
func DefaultPreset(dir string) []Source {
	return MonthlySources(dir, PresetFrom, PresetTo)
}

type manifestFile struct {
	Sources []struct {
		File string `yaml:"file"`
		Date string `yaml:"date"`
	} `yaml:"sources"`
}

// LoadManifest reads a YAML list of sources:
//
//	sources:
//	  - file: standard_jan25frl.txt
//	    date: 2025-01-01
//
// Relative paths are resolved against the manifest's directory.
func LoadManifest(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read manifest %s", path)
	}
	var mf manifestFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse manifest %s", path)
	}
	if len(mf.Sources) == 0 {
		return nil, eris.Errorf("ingest: manifest %s lists no sources", path)
	}

	base := filepath.Dir(path)
	sources := make([]Source, 0, len(mf.Sources))
	for i, entry := range mf.Sources {
		if entry.File == "" {
			return nil, eris.Errorf("ingest: manifest %s: entry %d has no file", path, i+1)
		}
		file := entry.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(base, file)
		}
		src, err := ParseSource(file, entry.Date)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: manifest %s: entry %d", path, i+1)
		}
		sources = append(sources, src)
	}
	return sources, nil
}
