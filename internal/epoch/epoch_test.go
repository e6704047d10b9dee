package epoch

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/schaermu/cratevendor/internal/fsutil"
)

func mkdirs(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		if err := os.MkdirAll(filepath.Join(root, rel), 0755); err != nil {
			t.Fatal(err)
		}
	}
}

func newCollector(root string) *Collector {
	return NewCollector(root, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"foo/v1",
		"foo/v2",
		"foo/custom",
		"bar/v0_3",
		"baz/v0_0_7",
		"chromium_crates_io/vendor",
	)
	if err := os.WriteFile(filepath.Join(root, "foo", "BUILD.gn"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	produced := mapset.NewThreadUnsafeSet(
		filepath.Join(root, "foo", "v2"),
		filepath.Join(root, "bar", "v0_3"),
	)

	deleted, err := newCollector(root).Collect(produced)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	want := []string{filepath.Join(root, "baz", "v0_0_7"), filepath.Join(root, "foo", "v1")}
	if diff := cmp.Diff(want, deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}

	checks := []struct {
		rel    string
		exists bool
	}{
		{"foo/v1", false},
		{"foo/v2", true},
		{"foo/custom", true},
		{"foo/BUILD.gn", true},
		{"bar/v0_3", true},
		{"baz", false},
		{"chromium_crates_io/vendor", true},
	}
	for _, c := range checks {
		if got := fsutil.Exists(filepath.Join(root, c.rel)); got != c.exists {
			t.Errorf("%s exists = %v, want %v", c.rel, got, c.exists)
		}
	}
}

func TestStale_IgnoresInvalidEpochNames(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "foo/v0", "foo/v01", "foo/v1_2", "foo/latest", "foo/v0_0")

	stale, err := newCollector(root).Stale(mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("expected nothing stale, got %v", stale)
	}
}

func TestCollect_MissingRoot(t *testing.T) {
	deleted, err := newCollector(filepath.Join(t.TempDir(), "missing")).Collect(mapset.NewThreadUnsafeSet[string]())
	if err != nil {
		t.Fatalf("missing output root should not be an error, got %v", err)
	}
	if len(deleted) != 0 {
		t.Errorf("expected nothing deleted, got %v", deleted)
	}
}
