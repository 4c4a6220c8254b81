package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// MaxEntryBytes bounds the uncompressed size of one archive entry. A full
// standard rating list is well under 100 MB.
const MaxEntryBytes = 512 << 20

// ExtractZIP writes every file entry of the archive at zipPath into destDir
// and returns their paths. Directory entries produce no path.
func ExtractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", filepath.Base(zipPath))
	}
	defer r.Close() //nolint:errcheck

	paths := make([]string, 0, len(r.File))
	for _, entry := range r.File {
		dest, err := entryPath(destDir, entry.Name)
		if err != nil {
			return paths, err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return paths, eris.Wrapf(err, "zip: mkdir %s", entry.Name)
			}
			continue
		}
		if err := writeEntry(entry, dest); err != nil {
			return paths, err
		}
		paths = append(paths, dest)
	}
	return paths, nil
}

// ExtractText extracts the archive and returns the path of the text file it
// carries. When several .txt entries exist, the one named want wins.
func ExtractText(zipPath, destDir, want string) (string, error) {
	paths, err := ExtractZIP(zipPath, destDir)
	if err != nil {
		return "", err
	}

	var txt []string
	for _, p := range paths {
		if strings.EqualFold(filepath.Base(p), want) {
			return p, nil
		}
		if strings.EqualFold(filepath.Ext(p), ".txt") {
			txt = append(txt, p)
		}
	}

	if len(txt) != 1 {
		return "", eris.Errorf("zip: expected one text file in %s, found %d", filepath.Base(zipPath), len(txt))
	}
	return txt[0], nil
}

// entryPath resolves name under destDir, rejecting names that escape it.
func entryPath(destDir, name string) (string, error) {
	root := filepath.Clean(destDir)
	dest := filepath.Join(root, name)
	if !strings.HasPrefix(dest, root+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", name)
	}
	return dest, nil
}

func writeEntry(entry *zip.File, dest string) error {
	if entry.UncompressedSize64 > MaxEntryBytes {
		return eris.Errorf("zip: entry %s is %d bytes, over the %d byte limit", entry.Name, entry.UncompressedSize64, MaxEntryBytes)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "zip: mkdir for %s", entry.Name)
	}

	rc, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", entry.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "zip: create %s", dest)
	}

	// The header size can lie; cap what is actually inflated.
	n, err := io.Copy(out, io.LimitReader(rc, MaxEntryBytes+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return eris.Wrapf(err, "zip: write %s", dest)
	}
	if n > MaxEntryBytes {
		os.Remove(dest) //nolint:errcheck
		return eris.Errorf("zip: entry %s exceeds %d bytes", entry.Name, MaxEntryBytes)
	}
	return nil
}
