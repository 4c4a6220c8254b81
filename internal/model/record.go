package model

import (
	"time"

	"github.com/rotisserie/eris"
)

const (
	// MinBirthYear is the lower sanity bound for birth years.
	MinBirthYear = 1900
	// DefaultMaxBirthYear is the fixed upper sanity bound for birth years. It is
	// a constant rather than the current year so a new calendar year never
	// changes parser output for an old file.
	DefaultMaxBirthYear = 2024
)

// RawRecord is a candidate player observation produced by a parser, before
// admission and persistence.
type RawRecord struct {
	FIDEID     string  `json:"fide_id"`
	Name       string  `json:"name"`
	Federation string  `json:"federation"`
	Rating     int     `json:"rating"`
	BirthYear  *int    `json:"birth_year"`
	Sex        string  `json:"sex,omitempty"`
	Title      *string `json:"title"`
	Rank       *int    `json:"rank"`
}

// Validate rejects records that cannot be persisted. Birth years must lie in
// [MinBirthYear, maxBirthYear]; zero means DefaultMaxBirthYear.
func (r RawRecord) Validate(maxBirthYear int) error {
	if maxBirthYear == 0 {
		maxBirthYear = DefaultMaxBirthYear
	}
	if r.FIDEID == "" {
		return eris.New("record: empty fide_id")
	}
	if r.Name == "" {
		return eris.Errorf("record %s: empty name", r.FIDEID)
	}
	if r.Rating <= 0 {
		return eris.Errorf("record %s: invalid rating %d", r.FIDEID, r.Rating)
	}
	if r.BirthYear != nil && (*r.BirthYear < MinBirthYear || *r.BirthYear > maxBirthYear) {
		return eris.Errorf("record %s: implausible birth year %d", r.FIDEID, *r.BirthYear)
	}
	if r.Rank != nil && *r.Rank <= 0 {
		return eris.Errorf("record %s: invalid rank %d", r.FIDEID, *r.Rank)
	}
	return nil
}

// Player returns the identity half of the record.
func (r RawRecord) Player() Player {
	return Player{
		FIDEID:    r.FIDEID,
		Name:      r.Name,
		BirthYear: r.BirthYear,
	}
}

// Ranking returns the observation half of the record for the given date.
func (r RawRecord) Ranking(scrapedDate, scrapedAt time.Time, source DataSource) Ranking {
	return Ranking{
		FIDEID:      r.FIDEID,
		Rank:        r.Rank,
		Rating:      r.Rating,
		Federation:  r.Federation,
		ScrapedDate: DateOnly(scrapedDate),
		ScrapedAt:   scrapedAt.UTC(),
		DataSource:  source,
	}
}
