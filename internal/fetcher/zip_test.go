package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIP_MultiFile(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"standard_jan25frl.txt": "list",
		"readme.txt":            "notes",
	})

	destDir := t.TempDir()
	extracted, err := ExtractZIP(zipPath, destDir)
	require.NoError(t, err)
	assert.Len(t, extracted, 2)

	data, err := os.ReadFile(filepath.Join(destDir, "standard_jan25frl.txt"))
	require.NoError(t, err)
	assert.Equal(t, "list", string(data))
}

func TestExtractText_Single(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"standard_oct24frl.txt": "rating list",
	})

	destDir := t.TempDir()
	path, err := ExtractText(zipPath, destDir, "standard_oct24frl.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "standard_oct24frl.txt"), path)
}

func TestExtractText_UnexpectedName(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"STANDARD_OCT24FRL.TXT": "rating list",
	})

	path, err := ExtractText(zipPath, t.TempDir(), "standard_oct24frl.txt")
	require.NoError(t, err)
	assert.Equal(t, "STANDARD_OCT24FRL.TXT", filepath.Base(path))
}

func TestExtractText_PrefersWantedName(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"notes.txt":             "x",
		"standard_nov24frl.txt": "rating list",
	})

	path, err := ExtractText(zipPath, t.TempDir(), "standard_nov24frl.txt")
	require.NoError(t, err)
	assert.Equal(t, "standard_nov24frl.txt", filepath.Base(path))
}

func TestExtractText_Ambiguous(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"a.txt": "aaa",
		"b.txt": "bbb",
	})

	_, err := ExtractText(zipPath, t.TempDir(), "standard_nov24frl.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected one text file")
}

func TestExtractText_NoText(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"list.xml": "<x/>",
	})

	_, err := ExtractText(zipPath, t.TempDir(), "standard_nov24frl.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 0")
}

func TestExtractZIP_ZipSlipPrevention(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"../../../etc/passwd": "malicious",
	})

	_, err := ExtractZIP(zipPath, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIP_InvalidArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notazip.zip")
	require.NoError(t, os.WriteFile(path, []byte("this is not a zip"), 0o644))

	_, err := ExtractZIP(path, t.TempDir())
	require.Error(t, err)
}
