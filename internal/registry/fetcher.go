// Package registry downloads crate archives and unpacks them into the vendor directory.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/moby/go-archive"
	"github.com/moby/go-archive/compression"

	"github.com/schaermu/cratevendor/internal/crates"
	"github.com/schaermu/cratevendor/internal/fsutil"
)

// ErrMissingCrateDir is returned when an archive lacks the expected top-level directory.
var ErrMissingCrateDir = errors.New("archive does not contain the crate directory")

// StatusError reports a download that did not answer 200 OK.
type StatusError struct {
	Name       string
	Version    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to download %s %s: registry returned %d %s",
		e.Name, e.Version, e.StatusCode, http.StatusText(e.StatusCode))
}

// userAgent identifies the tool; crates.io rejects anonymous clients.
const userAgent = "cratevendor (+https://github.com/schaermu/cratevendor)"

// Fetcher downloads registry archives into a vendor directory.
type Fetcher struct {
	baseURL   string
	vendorDir string
	client    *http.Client
	logger    *slog.Logger

	// beforeRename runs on the staged crate directory right before it replaces
	// the destination. Tests use it to simulate an interruption.
	beforeRename func(staged string) error
}

// NewFetcher creates a fetcher for the registry API rooted at baseURL.
// A nil client uses http.DefaultClient.
func NewFetcher(baseURL, vendorDir string, client *http.Client, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{
		baseURL:   baseURL,
		vendorDir: vendorDir,
		client:    client,
		logger:    logger,
	}
}

// DownloadURL returns the archive location of name@version.
func (f *Fetcher) DownloadURL(name string, version *semver.Version) string {
	return fmt.Sprintf("%s/crates/%s/%s/download", f.baseURL, name, version)
}

// Fetch downloads name@version and installs it as vendorDir/name-version,
// replacing whatever was there. The crate is unpacked into a staging
// directory inside vendorDir and only renamed into place once complete, so an
// interrupted fetch never leaves a half-extracted crate at the destination.
// The installed directory carries the incomplete marker and an empty checksum
// manifest; the caller clears the marker once patching is done.
func (f *Fetcher) Fetch(ctx context.Context, name string, version *semver.Version) (string, error) {
	f.logger.Info("downloading crate", "crate", name, "version", version.String())

	body, err := f.download(ctx, name, version)
	if err != nil {
		return "", err
	}

	if err := fsutil.EnsureDir(f.vendorDir); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp(f.vendorDir, ".tmp-cratevendor-")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			f.logger.Warn("failed to remove staging directory", "dir", tmp, "error", err)
		}
	}()

	if err := extract(body, tmp); err != nil {
		return "", fmt.Errorf("failed to extract %s %s: %w", name, version, err)
	}

	staged := filepath.Join(tmp, crates.ArchiveDirName(name, version))
	info, err := os.Stat(staged)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s %s: %w: %s", name, version, ErrMissingCrateDir, crates.ArchiveDirName(name, version))
	}

	if err := fsutil.MarkIncomplete(staged); err != nil {
		return "", err
	}
	if err := fsutil.WriteChecksumStub(staged); err != nil {
		return "", err
	}
	if f.beforeRename != nil {
		if err := f.beforeRename(staged); err != nil {
			return "", err
		}
	}

	dest := filepath.Join(f.vendorDir, crates.VendorDirName(name, version))
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to remove old %s: %w", dest, err)
	}
	if err := os.Rename(staged, dest); err != nil {
		return "", fmt.Errorf("failed to move %s into place: %w", dest, err)
	}

	f.logger.Debug("installed crate", "crate", name, "version", version.String(), "dir", dest)
	return dest, nil
}

// download reads the whole archive into memory before anything touches disk.
func (f *Fetcher) download(ctx context.Context, name string, version *semver.Version) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.DownloadURL(name, version), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s %s: %w", name, version, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s %s: %w", name, version, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Name: name, Version: version.String(), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive of %s %s: %w", name, version, err)
	}
	return body, nil
}

// extract unpacks a gzipped tarball into dest.
func extract(body []byte, dest string) error {
	stream, err := compression.DecompressStream(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to decompress archive: %w", err)
	}
	defer func() {
		_ = stream.Close()
	}()

	if err := archive.UntarUncompressed(stream, dest, &archive.TarOptions{NoLchown: true}); err != nil {
		return fmt.Errorf("failed to unpack archive: %w", err)
	}
	return nil
}
