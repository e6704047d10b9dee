package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const helloPatch = `diff --git a/vendor/hello-1.0.0/src/lib.rs b/vendor/hello-1.0.0/src/lib.rs
--- a/vendor/hello-1.0.0/src/lib.rs
+++ b/vendor/hello-1.0.0/src/lib.rs
@@ -1 +1 @@
-pub fn hello() {}
+pub fn hello() -> u32 { 42 }
`

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

// writeCrate creates root/vendor/hello-1.0.0/src/lib.rs with the unpatched content.
func writeCrate(t *testing.T, root string) string {
	t.Helper()
	lib := filepath.Join(root, "vendor", "hello-1.0.0", "src", "lib.rs")
	if err := os.MkdirAll(filepath.Dir(lib), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(lib, []byte("pub fn hello() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return lib
}

func TestApply(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	lib := writeCrate(t, root)

	client := NewShellClient("")
	_, err := client.Apply(context.Background(), ApplyOptions{Dir: root, Strip: 1}, []byte(helloPatch))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := os.ReadFile(lib)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "pub fn hello() -> u32 { 42 }\n" {
		t.Errorf("patch not applied, got %q", got)
	}
}

func TestApply_StripAndDirectory(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	lib := writeCrate(t, root)

	// The patch was recorded against a different checkout layout.
	patch := strings.ReplaceAll(helloPatch, "vendor/hello-1.0.0/", "old/place/hello/")

	client := NewShellClient("")
	_, err := client.Apply(context.Background(), ApplyOptions{
		Dir:       root,
		Strip:     4,
		Directory: "vendor/hello-1.0.0",
	}, []byte(patch))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, _ := os.ReadFile(lib)
	if !strings.Contains(string(got), "42") {
		t.Errorf("patch not applied, got %q", got)
	}
}

func TestApply_Failure(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	lib := writeCrate(t, root)
	if err := os.WriteFile(lib, []byte("pub fn goodbye() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	client := NewShellClient("")
	out, err := client.Apply(context.Background(), ApplyOptions{Dir: root, Strip: 1, Verbose: true}, []byte(helloPatch))
	if err == nil {
		t.Fatal("expected error for non-applying patch")
	}
	if !strings.Contains(out, "lib.rs") {
		t.Errorf("expected verbose output to mention the file, got %q", out)
	}
}

func TestApplyArgs(t *testing.T) {
	tests := []struct {
		name string
		opts ApplyOptions
		want []string
	}{
		{"strip only", ApplyOptions{Strip: 1}, []string{"apply", "-p1", "-"}},
		{"directory", ApplyOptions{Strip: 5, Directory: "a/b/c"}, []string{"apply", "-p5", "--directory=a/b/c", "-"}},
		{"verbose", ApplyOptions{Strip: 2, Directory: "x", Verbose: true}, []string{"apply", "-p2", "--directory=x", "-v", "-"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, applyArgs(tt.opts)); diff != "" {
				t.Errorf("applyArgs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTopLevel(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	if out, err := exec.Command("git", "init", "-q", root).CombinedOutput(); err != nil {
		t.Fatalf("git init failed: %v: %s", err, out)
	}
	sub := filepath.Join(root, "third_party", "rust")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	client := NewShellClient("")
	got, err := client.TopLevel(context.Background(), sub)
	if err != nil {
		t.Fatalf("TopLevel failed: %v", err)
	}
	want, err := filepath.EvalSymlinks(root)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("expected top level %s, got %s", want, got)
	}
}

func TestTopLevel_OutsideRepository(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))

	if _, err := NewShellClient("").TopLevel(context.Background(), dir); err == nil {
		t.Error("expected error outside a git repository")
	}
}
