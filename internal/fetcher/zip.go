package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIPMember extracts the one file in the archive whose extension is in
// exts (case-insensitive). With no exts, the archive must hold exactly one
// file. Returns the extracted path.
func ExtractZIPMember(zipPath, destDir string, exts ...string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "fetcher: zip open archive")
	}
	defer r.Close() //nolint:errcheck

	var members []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !hasExt(f.Name, exts) {
			continue
		}
		members = append(members, f)
	}

	if len(members) != 1 {
		return "", eris.Errorf("fetcher: zip expected exactly 1 matching file, got %d", len(members))
	}
	return extractZIPEntry(members[0], destDir)
}

func hasExt(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// IsZIP reports whether the file at path starts with the ZIP local header.
func IsZIP(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck
	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		return false
	}
	return string(head) == "PK\x03\x04"
}

func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, filepath.Base(f.Name))
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("fetcher: zip illegal path %q", f.Name)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", eris.Wrap(err, "fetcher: zip create directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "fetcher: zip open entry")
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(destPath, rc); err != nil {
		return "", err
	}
	return destPath, nil
}
