package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/fide-ratings/internal/model"
)

const listHeader = "ID Number      Name                                                         Fed Sex Tit  WTit OTit           FOA SRtng SGm SK Bday Flag"

type listRow struct {
	id, name, fed, rating, birth string
}

// line renders a row at the standard list's byte offsets.
func (r listRow) line() string {
	buf := []byte(strings.Repeat(" ", 152))
	copy(buf[0:], r.id)
	copy(buf[15:], r.name)
	copy(buf[76:], r.fed)
	copy(buf[79:], "M")
	copy(buf[113:], r.rating)
	copy(buf[126:], r.birth)
	return string(buf)
}

func writeList(t *testing.T, dir, name string, rows ...listRow) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(listHeader + "\n")
	for _, r := range rows {
		b.WriteString(r.line() + "\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func raw(id string, rating int) model.RawRecord {
	return model.RawRecord{FIDEID: id, Name: "Player " + id, Federation: "FID", Rating: rating}
}
