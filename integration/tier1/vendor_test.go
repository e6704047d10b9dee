//go:build integration

package tier1

import (
	"context"
	"os"
	"strings"
	"testing"
)

const (
	itoaDir        = "vendor/itoa-1.0.11"
	placeholderDir = "vendor/static_assertions-1.1.0"
	itoaReadme     = "out/itoa/v1/README.md"
	patchedFile    = itoaDir + "/PATCHED"
)

func TestTier1Vendor(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	h := NewHarness(t)
	defer h.Cleanup()

	if err := h.BuildBinary(ctx); err != nil {
		t.Fatalf("build binary: %v", err)
	}

	setupWorkspace(t, h)

	t.Run("A_InitialVendor", func(t *testing.T) {
		testInitialVendor(t, h, ctx)
	})

	t.Run("B_NoOpVendor", func(t *testing.T) {
		testNoOpVendor(t, h, ctx)
	})

	t.Run("C_StaleDirectoriesRemoved", func(t *testing.T) {
		testStaleDirectoriesRemoved(t, h, ctx)
	})

	t.Run("D_DryRunMode", func(t *testing.T) {
		testDryRunMode(t, h, ctx)
	})

	t.Run("E_NoPatches", func(t *testing.T) {
		testNoPatches(t, h, ctx)
	})
}

// setupWorkspace writes a one-crate cargo workspace, its config and a patch for itoa
func setupWorkspace(t *testing.T, h *Harness) {
	t.Helper()

	h.WriteFile(t, "Cargo.toml", `[package]
name = "app"
version = "0.1.0"
edition = "2021"

[dependencies]
itoa = "=1.0.11"

[dev-dependencies]
static_assertions = "=1.1.0"
`)
	h.WriteFile(t, "src/lib.rs", "")

	h.WriteFile(t, "cratevendor.yaml", `paths:
  cargo_root: "`+h.workspace+`"
  output_root: "`+h.Path("out")+`"
resolve:
  root: "app"
crates:
  itoa:
    group: "safe"
    security_critical: false
`)

	h.WriteFile(t, "patches/itoa/0001-Add-marker.patch", `From 0000000000000000000000000000000000000000 Mon Sep 17 00:00:00 2001
Subject: [PATCH] Add marker

---
 vendor/itoa-1.0.11/PATCHED | 1 +
 1 file changed, 1 insertion(+)
 create mode 100644 vendor/itoa-1.0.11/PATCHED

diff --git a/vendor/itoa-1.0.11/PATCHED b/vendor/itoa-1.0.11/PATCHED
new file mode 100644
--- /dev/null
+++ b/vendor/itoa-1.0.11/PATCHED
@@ -0,0 +1 @@
+patched
`)
}

// testInitialVendor fetches itoa, patches it and replaces the dev-only crate with a placeholder
func testInitialVendor(t *testing.T, h *Harness, ctx context.Context) {
	t.Helper()
	h.MustRun(ctx, t, "vendor")

	manifest, err := h.ReadFile(itoaDir + "/Cargo.toml")
	if err != nil {
		t.Fatalf("itoa not vendored: %v", err)
	}
	if !strings.Contains(manifest, `name = "itoa"`) {
		t.Errorf("unexpected itoa manifest:\n%s", manifest)
	}
	if !h.Exists(patchedFile) {
		t.Error("patch was not applied to itoa")
	}
	if h.Exists(itoaDir + "/.cratevendor-incomplete") {
		t.Error("itoa still marked incomplete")
	}
	if !h.Exists(itoaDir + "/.cargo-checksum.json") {
		t.Error("itoa has no checksum file")
	}

	lib, err := h.ReadFile(placeholderDir + "/src/lib.rs")
	if err != nil {
		t.Fatalf("placeholder not written: %v", err)
	}
	if !strings.Contains(lib, "compile_error!") {
		t.Errorf("placeholder lib does not refuse to compile:\n%s", lib)
	}

	readme, err := h.ReadFile(itoaReadme)
	if err != nil {
		t.Fatalf("README not written: %v", err)
	}
	if !strings.Contains(readme, "Security Critical: no") {
		t.Errorf("README does not reflect crate config:\n%s", readme)
	}
	if h.Exists("out/static_assertions") {
		t.Error("placeholder crate got a README")
	}

	policy, err := h.ReadFile("supply-chain/config.toml")
	if err != nil {
		t.Fatalf("vet config not written: %v", err)
	}
	if !strings.Contains(policy, `[policy."itoa:1.0.11"]`) {
		t.Errorf("vet config does not cover itoa:\n%s", policy)
	}

	lock, err := h.ReadFile("Cargo.lock")
	if err != nil {
		t.Fatalf("Cargo.lock missing: %v", err)
	}
	if strings.Contains(lock, "checksum = ") {
		t.Error("Cargo.lock still carries checksums")
	}
}

// testNoOpVendor leaves correct directories untouched
func testNoOpVendor(t *testing.T, h *Harness, ctx context.Context) {
	t.Helper()
	h.WriteFile(t, itoaDir+"/SENTINEL", "keep")

	h.MustRun(ctx, t, "vendor")

	if !h.Exists(itoaDir + "/SENTINEL") {
		t.Error("itoa was re-fetched although it was already vendored")
	}
}

// testStaleDirectoriesRemoved deletes unclaimed vendor and epoch directories
func testStaleDirectoriesRemoved(t *testing.T, h *Harness, ctx context.Context) {
	t.Helper()
	h.WriteFile(t, "vendor/gone-0.1.0/Cargo.toml", "[package]\nname = \"gone\"\nversion = \"0.1.0\"\n")
	h.WriteFile(t, "out/gone/v0_1/README.md", "stale")
	h.WriteFile(t, "out/itoa/v0_4/README.md", "stale")

	h.MustRun(ctx, t, "vendor")

	for _, rel := range []string{"vendor/gone-0.1.0", "out/gone", "out/itoa/v0_4"} {
		if h.Exists(rel) {
			t.Errorf("%s should have been removed", rel)
		}
	}
	if !h.Exists(itoaReadme) {
		t.Error("current README removed")
	}
}

// testDryRunMode reports missing crates without touching the tree
func testDryRunMode(t *testing.T, h *Harness, ctx context.Context) {
	t.Helper()
	if err := os.RemoveAll(h.Path(itoaDir)); err != nil {
		t.Fatal(err)
	}

	h.MustRun(ctx, t, "vendor", "--dry-run")

	if h.Exists(itoaDir) {
		t.Error("dry run fetched itoa")
	}

	h.MustRun(ctx, t, "vendor")
	if !h.Exists(patchedFile) {
		t.Error("itoa not restored after dry run")
	}
}

// testNoPatches fetches itoa without its patch series
func testNoPatches(t *testing.T, h *Harness, ctx context.Context) {
	t.Helper()
	if err := os.RemoveAll(h.Path(itoaDir)); err != nil {
		t.Fatal(err)
	}

	h.MustRun(ctx, t, "vendor", "--no-patches=itoa")

	if !h.Exists(itoaDir + "/Cargo.toml") {
		t.Fatal("itoa not vendored")
	}
	if h.Exists(patchedFile) {
		t.Error("patch applied despite --no-patches")
	}
}
