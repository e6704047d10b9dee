package crates

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestVendorDirName(t *testing.T) {
	v := semver.MustParse("1.0.210")
	if got := VendorDirName("serde", v); got != "serde-1.0.210" {
		t.Errorf("expected serde-1.0.210, got %s", got)
	}

	pre := semver.MustParse("0.3.0-beta.1")
	if got := VendorDirName("foo-bar", pre); got != "foo-bar-0.3.0-beta.1" {
		t.Errorf("expected foo-bar-0.3.0-beta.1, got %s", got)
	}
}

func TestNewPackageID(t *testing.T) {
	id, err := NewPackageID("some_package", "1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if !id.Matches("some_package", semver.MustParse("1.2.3")) {
		t.Errorf("expected %s to match some_package 1.2.3", id)
	}
	if id.Matches("some_package", semver.MustParse("1.2.4")) {
		t.Error("expected version mismatch")
	}
	if id.Matches("other", semver.MustParse("1.2.3")) {
		t.Error("expected name mismatch")
	}

	if _, err := NewPackageID("x", "1.2"); err == nil {
		t.Error("expected error for non-strict version")
	}
}

func TestEpochFromVersion(t *testing.T) {
	for _, tc := range []struct {
		version string
		want    string
	}{
		{"1.0.0", "v1"},
		{"2.5.3", "v2"},
		{"0.3.17", "v0_3"},
		{"0.0.7", "v0_0_7"},
		{"10.0.0-rc.1", "v10"},
	} {
		got := EpochFromVersion(semver.MustParse(tc.version)).String()
		if got != tc.want {
			t.Errorf("EpochFromVersion(%s) = %s, want %s", tc.version, got, tc.want)
		}
	}
}

func TestParseEpoch(t *testing.T) {
	valid := []string{"v1", "v2", "v10", "v0_1", "v0_23", "v0_0_7", "v0_0_0"}
	for _, s := range valid {
		e, err := ParseEpoch(s)
		if err != nil {
			t.Errorf("ParseEpoch(%q) failed: %v", s, err)
			continue
		}
		if e.String() != s {
			t.Errorf("ParseEpoch(%q).String() = %q", s, e.String())
		}
	}

	invalid := []string{"", "v", "v0", "v0_0", "v01", "v1_2", "v0_01", "1", "latest", "v-1", "v1_", "vx", "v0_0_1_2"}
	for _, s := range invalid {
		_, err := ParseEpoch(s)
		if err == nil {
			t.Errorf("ParseEpoch(%q) succeeded, want error", s)
			continue
		}
		if !errors.Is(err, ErrInvalidEpoch) {
			t.Errorf("ParseEpoch(%q) error %v is not ErrInvalidEpoch", s, err)
		}
		if IsEpochName(s) {
			t.Errorf("IsEpochName(%q) = true", s)
		}
	}
}

func TestOutputDir(t *testing.T) {
	got := OutputDir("/out", "proc-macro2", semver.MustParse("1.0.86"))
	want := filepath.Join("/out", "proc_macro2", "v1")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}
