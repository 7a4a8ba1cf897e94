package binary

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

type zipEntry struct {
	Name    string
	Content string
	Mode    os.FileMode
}

// buildZip returns the bytes of a zip archive holding entries. Names ending
// in "/" become directory entries.
func buildZip(t *testing.T, entries []zipEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate}
		mode := e.Mode
		if mode == 0 {
			mode = 0644
		}
		if e.Name[len(e.Name)-1] == '/' {
			mode |= os.ModeDir
		}
		hdr.SetMode(mode)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create entry %s: %v", e.Name, err)
		}
		if _, err := w.Write([]byte(e.Content)); err != nil {
			t.Fatalf("write entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

// writeZip writes a zip archive holding entries to dir/name.
func writeZip(t *testing.T, dir, name string, entries []zipEntry) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buildZip(t, entries), 0644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}
