package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// DataSource tags where a ranking observation came from.
type DataSource string

const (
	DataSourceScraper    DataSource = "scraper"    // live top-list scrape, rank populated
	DataSourceHistorical DataSource = "historical" // backfilled rating list, rank is null
)

// ParseDataSource converts a string into a DataSource.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(s) {
	case DataSourceScraper, DataSourceHistorical:
		return DataSource(s), nil
	default:
		return "", eris.Errorf("unknown data source: %q (valid: scraper, historical)", s)
	}
}

// Player is the identity row keyed by FIDE ID.
type Player struct {
	FIDEID    string    `json:"fide_id"`
	Name      string    `json:"name"`
	BirthYear *int      `json:"birth_year"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// Ranking is a dated rating observation for a player. Once written it is
// never updated; (FIDEID, ScrapedDate) is unique.
type Ranking struct {
	FIDEID      string     `json:"fide_id"`
	Rank        *int       `json:"rank"`
	Rating      int        `json:"rating"`
	Federation  string     `json:"federation"`
	ScrapedDate time.Time  `json:"scraped_date"`
	ScrapedAt   time.Time  `json:"scraped_at"`
	DataSource  DataSource `json:"data_source"`
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
