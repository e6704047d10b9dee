package testutil

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/moby/go-archive"
	"github.com/moby/go-archive/compression"
)

// CrateArchive builds a gzipped tarball shaped like a registry download: every
// file sits under a top-level name-version directory. Keys of files are
// slash-separated paths relative to that directory.
func CrateArchive(t *testing.T, name, version string, files map[string]string) []byte {
	t.Helper()

	src := t.TempDir()
	top := filepath.Join(src, name+"-"+version)
	for rel, content := range files {
		path := filepath.Join(top, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(top, 0755); err != nil {
		t.Fatal(err)
	}

	rc, err := archive.TarWithOptions(src, &archive.TarOptions{Compression: compression.Gzip})
	if err != nil {
		t.Fatalf("failed to build archive: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("failed to read archive: %v", err)
	}
	return data
}
