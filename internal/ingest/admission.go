package ingest

import (
	"github.com/sells-group/fide-ratings/internal/fidefile"
	"github.com/sells-group/fide-ratings/internal/model"
)

// DefaultMinRating is the rating threshold for admitting new players.
const DefaultMinRating = 2500

// Admit reports whether rec should be persisted: its rating meets minRating,
// or its player is already tracked. Known players are kept regardless of
// rating so their history has no gaps.
func Admit(rec model.RawRecord, minRating int, existing IDSet) bool {
	return rec.Rating >= minRating || existing.Has(rec.FIDEID)
}

// Filter applies Admit to a stream of records and keeps counts.
type Filter struct {
	minRating int
	existing  IDSet
	stats     *fidefile.Stats

	// NewPlayers counts admitted records whose player is not in the snapshot.
	NewPlayers int
	// ExistingPlayers counts admitted records whose player is in the snapshot.
	ExistingPlayers int
}

// NewFilter creates a Filter. Dropped records are counted in
// stats.SkippedLowRating when stats is non-nil.
func NewFilter(minRating int, existing IDSet, stats *fidefile.Stats) *Filter {
	return &Filter{minRating: minRating, existing: existing, stats: stats}
}

// Admit applies the admission rule to one record and updates the counters.
func (f *Filter) Admit(rec model.RawRecord) bool {
	if f.existing.Has(rec.FIDEID) {
		f.ExistingPlayers++
		return true
	}
	if rec.Rating >= f.minRating {
		f.NewPlayers++
		return true
	}
	if f.stats != nil {
		f.stats.SkippedLowRating++
	}
	return false
}

// Apply returns the admitted subset of recs in input order.
func (f *Filter) Apply(recs []model.RawRecord) []model.RawRecord {
	out := make([]model.RawRecord, 0, len(recs))
	for _, rec := range recs {
		if f.Admit(rec) {
			out = append(out, rec)
		}
	}
	return out
}
