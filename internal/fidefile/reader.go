// Package fidefile reads FIDE fixed-width rating list extracts and downloads
// the monthly archives they ship in.
package fidefile

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/fide-ratings/internal/model"
)

// MinLineLength is the shortest valid data line in bytes. A newline
// terminator counts as one byte, so a terminated line needs 122 bytes of
// content. CRLF counts as a single terminator byte.
const MinLineLength = 123

// Byte offsets of each field, half-open. Offsets index raw ISO-8859-1 bytes.
const (
	idStart, idEnd       = 0, 15
	nameStart, nameEnd   = 15, 76
	fedStart, fedEnd     = 76, 79
	sexStart, sexEnd     = 79, 80
	titleStart, titleEnd = 80, 83
	ratStart, ratEnd     = 113, 117
	birthStart, birthEnd = 126, 130
)

// maxLineBytes bounds a single data line. Longer lines are drained and
// reported as malformed.
const maxLineBytes = 64 * 1024

// Options configures a Reader.
type Options struct {
	// MaxBirthYear is the inclusive upper bound for a plausible birth year.
	// Zero means model.DefaultMaxBirthYear.
	MaxBirthYear int
}

// Stats counts parse outcomes. SkippedLowRating is filled in by the
// admission filter, not by the Reader.
type Stats struct {
	Valid            int `json:"valid"`
	SkippedInvalid   int `json:"skipped_invalid"`
	SkippedLowRating int `json:"skipped_low_rating"`
}

// MalformedRecordError reports a data line that was skipped.
type MalformedRecordError struct {
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("fidefile: line %d: %s", e.Line, e.Reason)
}

// Reader yields records from a fixed-width extract one line at a time.
type Reader struct {
	br      *bufio.Reader
	eof     bool
	dec     *encoding.Decoder
	maxYear int
	line    int
	stats   Stats
}

// NewReader returns a Reader over r. The first line of r is treated as a
// header and skipped.
func NewReader(r io.Reader, opts Options) *Reader {
	maxYear := opts.MaxBirthYear
	if maxYear == 0 {
		maxYear = model.DefaultMaxBirthYear
	}

	return &Reader{
		br:      bufio.NewReaderSize(r, maxLineBytes),
		dec:     charmap.ISO8859_1.NewDecoder(),
		maxYear: maxYear,
	}
}

// Read returns the next record. It returns io.EOF when the input is
// exhausted and a *MalformedRecordError for a line that was skipped; callers
// should continue reading after the latter. Any other error is an I/O
// failure.
func (r *Reader) Read() (model.RawRecord, error) {
	for {
		line, terminated, oversized, err := r.nextLine()
		if err != nil {
			return model.RawRecord{}, eris.Wrapf(err, "fidefile: read line %d", r.line+1)
		}
		if line == nil && !terminated && !oversized {
			return model.RawRecord{}, io.EOF
		}
		r.line++
		if r.line == 1 {
			continue
		}

		var rec model.RawRecord
		var reason string
		if oversized {
			reason = fmt.Sprintf("line too long (over %d bytes)", maxLineBytes)
		} else {
			rec, reason = r.parseLine(line, terminated)
		}
		if reason != "" {
			r.stats.SkippedInvalid++
			return model.RawRecord{}, &MalformedRecordError{Line: r.line, Reason: reason}
		}
		r.stats.Valid++
		return rec, nil
	}
}

// nextLine returns the next line without its terminator. terminated reports
// whether a newline ended it. An oversized line is consumed through its
// newline and returned as nil with oversized set. At end of input it returns
// nil, false, false, nil.
func (r *Reader) nextLine() (line []byte, terminated, oversized bool, err error) {
	if r.eof {
		return nil, false, false, nil
	}

	line, err = r.br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.br.ReadSlice('\n')
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			err = nil
		}
		return nil, err == nil, true, err
	}
	if errors.Is(err, io.EOF) {
		r.eof = true
		if len(line) == 0 {
			return nil, false, false, nil
		}
		return bytes.TrimSuffix(line, []byte{'\r'}), false, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, true, false, nil
}

// Records iterates over every line, yielding either a record or the error
// Read returned for it. Iteration stops after io.EOF or an I/O error.
func (r *Reader) Records() iter.Seq2[model.RawRecord, error] {
	return func(yield func(model.RawRecord, error) bool) {
		for {
			rec, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var malformed *MalformedRecordError
				if !errors.As(err, &malformed) {
					yield(model.RawRecord{}, err)
					return
				}
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

// Stats returns the counters accumulated so far.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Line returns the number of lines consumed, header included.
func (r *Reader) Line() int {
	return r.line
}

func (r *Reader) parseLine(line []byte, terminated bool) (model.RawRecord, string) {
	length := len(line)
	if terminated {
		length++
	}
	if length < MinLineLength {
		return model.RawRecord{}, fmt.Sprintf("line too short (%d bytes)", length)
	}

	fideID := r.field(line, idStart, idEnd)
	name := r.field(line, nameStart, nameEnd)
	ratingStr := r.field(line, ratStart, ratEnd)

	if fideID == "" || ratingStr == "" || name == "" {
		return model.RawRecord{}, "missing fide id, name or rating"
	}

	rating, err := strconv.Atoi(ratingStr)
	if err != nil {
		return model.RawRecord{}, fmt.Sprintf("unparsable rating %q", ratingStr)
	}

	return model.RawRecord{
		FIDEID:     fideID,
		Name:       name,
		Federation: r.field(line, fedStart, fedEnd),
		Rating:     rating,
		BirthYear:  r.birthYear(r.field(line, birthStart, birthEnd)),
		Sex:        r.field(line, sexStart, sexEnd),
		Title:      nil,
		Rank:       nil,
	}, ""
}

// field slices [start, end) out of line, clamped to the line length, decodes
// it from ISO-8859-1 and trims surrounding whitespace.
func (r *Reader) field(line []byte, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	s, err := r.dec.Bytes(line[start:end])
	if err != nil {
		return strings.TrimSpace(string(line[start:end]))
	}
	return strings.TrimSpace(string(s))
}

// birthYear parses the leading four digits of the birth field. Unparsable or
// implausible values yield nil without invalidating the record.
func (r *Reader) birthYear(s string) *int {
	if len(s) < 4 {
		return nil
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil || y < model.MinBirthYear || y > r.maxYear {
		return nil
	}
	return &y
}

// ParseFile reads every valid record from the extract at path. Malformed
// lines are skipped and counted.
func ParseFile(path string, opts Options) ([]model.RawRecord, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, eris.Wrapf(err, "fidefile: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	rd := NewReader(f, opts)
	var records []model.RawRecord
	for rec, err := range rd.Records() {
		if err != nil {
			var malformed *MalformedRecordError
			if errors.As(err, &malformed) {
				continue
			}
			return records, rd.Stats(), eris.Wrapf(err, "fidefile: parse %s", path)
		}
		records = append(records, rec)
	}
	return records, rd.Stats(), nil
}
