package fsutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestWriteChecksumStub(t *testing.T) {
	dir := t.TempDir()
	if err := WriteChecksumStub(dir); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(dir, ".cargo-checksum.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "{\"files\":{}}\n" {
		t.Errorf("unexpected checksum stub %q", string(got))
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cargo.toml")
	if err := WriteFile(path, []byte("old")); err != nil {
		t.Fatal(err)
	}
	if err := WriteFile(path, []byte("new")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new" {
		t.Errorf("expected new, got %q", string(got))
	}
}

func TestWriteFile_MissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "file")
	if err := WriteFile(path, []byte("x")); err == nil {
		t.Fatal("expected error for missing parent directory")
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"Cargo.toml", "src/lib.rs", "src/nested/mod.rs", ".hidden"} {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := ClearDir(dir); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}

func TestSubDirs(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"a-1.0.0", "b-2.0.0"} {
		if err := os.Mkdir(filepath.Join(dir, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "file"), nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "nowhere"), filepath.Join(dir, "dangling")); err != nil {
		t.Fatal(err)
	}

	got, err := SubDirs(dir)
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a-1.0.0" || got[1] != "b-2.0.0" {
		t.Errorf("unexpected subdirs %v", got)
	}

	if _, err := SubDirs(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing dir")
	}
}

func TestIncompleteMarker(t *testing.T) {
	dir := t.TempDir()
	if IsIncomplete(dir) {
		t.Fatal("fresh dir should not be incomplete")
	}
	if err := MarkIncomplete(dir); err != nil {
		t.Fatal(err)
	}
	if !IsIncomplete(dir) {
		t.Fatal("expected dir to be incomplete after MarkIncomplete")
	}
	if err := ClearIncomplete(dir); err != nil {
		t.Fatal(err)
	}
	if IsIncomplete(dir) {
		t.Error("expected marker to be gone")
	}
	if err := ClearIncomplete(dir); err != nil {
		t.Errorf("clearing a missing marker should succeed, got %v", err)
	}
}
