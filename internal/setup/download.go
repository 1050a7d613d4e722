package setup

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/network"
)

// knownGoodVersionsURL is the Chrome for Testing manifest listing, per
// platform, a stable build's download URL — the same "fetch a JSON
// manifest, pick the asset for this platform" shape as a GitHub release
// lookup, just against Google's own distribution channel instead of
// GitHub's API.
const knownGoodVersionsURL = "https://googlechromelabs.github.io/chrome-for-testing/last-known-good-versions-with-downloads.json"

// platformKey maps a (GOOS, GOARCH) pair to the platform identifier the
// Chrome for Testing manifest uses.
func platformKey() (string, bool) {
	switch runtime.GOOS {
	case "linux":
		return "linux64", true
	case "darwin":
		if runtime.GOARCH == "arm64" {
			return "mac-arm64", true
		}
		return "mac-x64", true
	case "windows":
		return "win64", true
	default:
		return "", false
	}
}

type versionManifest struct {
	Channels map[string]struct {
		Version   string `json:"version"`
		Downloads struct {
			Chrome []struct {
				Platform string `json:"platform"`
				URL      string `json:"url"`
			} `json:"chrome"`
		} `json:"downloads"`
	} `json:"channels"`
}

// Downloader fetches and installs a stable Chrome build into the local
// binary cache when no usable binary is found on PATH or at a default
// install location.
type Downloader struct {
	client network.Doer
	logger *zap.Logger
}

// NewDownloader builds a Downloader over the given HTTP client.
func NewDownloader(client network.Doer, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{client: client, logger: logger.Named("setup")}
}

// Download resolves the current stable build for this platform, downloads
// its zip archive, and extracts the Chrome binary into the cache
// directory, returning its path. maxRetries bounds transient network
// errors on both the manifest fetch and the archive download.
func (d *Downloader) Download(ctx context.Context, maxRetries int) (string, error) {
	platform, ok := platformKey()
	if !ok {
		return "", fmt.Errorf("no known Chrome for Testing build for %s/%s", runtime.GOOS, runtime.GOARCH)
	}

	assetURL, version, err := d.resolveAssetURL(ctx, platform, maxRetries)
	if err != nil {
		return "", err
	}
	d.logger.Info("downloading Chrome", zap.String("version", version), zap.String("platform", platform))

	cacheDir, err := CacheDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	archivePath := filepath.Join(cacheDir, "chrome.zip")
	if err := d.downloadFile(ctx, assetURL, archivePath, maxRetries); err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	binPath, err := extractChromeBinary(archivePath, cacheDir)
	if err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(binPath, 0o755); err != nil {
			return "", fmt.Errorf("make binary executable: %w", err)
		}
	}
	d.logger.Info("Chrome installed", zap.String("path", binPath))
	return binPath, nil
}

func (d *Downloader) resolveAssetURL(ctx context.Context, platform string, maxRetries int) (string, string, error) {
	resp, err := network.DoWithRetry(ctx, d.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, knownGoodVersionsURL, nil)
	}, maxRetries)
	if err != nil {
		return "", "", fmt.Errorf("fetch Chrome version manifest: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("version manifest request returned status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", "", fmt.Errorf("read version manifest: %w", err)
	}

	var manifest versionManifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return "", "", fmt.Errorf("parse version manifest: %w", err)
	}

	stable, ok := manifest.Channels["Stable"]
	if !ok {
		return "", "", fmt.Errorf("version manifest has no Stable channel")
	}
	for _, dl := range stable.Downloads.Chrome {
		if dl.Platform == platform {
			return dl.URL, stable.Version, nil
		}
	}
	return "", "", fmt.Errorf("no Stable build for platform %q", platform)
}

func (d *Downloader) downloadFile(ctx context.Context, assetURL, destPath string, maxRetries int) error {
	resp, err := network.DoWithRetry(ctx, d.client, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	}, maxRetries)
	if err != nil {
		return fmt.Errorf("download Chrome archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("archive download returned status %s", resp.Status)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer out.Close()

	const maxArchiveBytes = 512 << 20
	if _, err := io.Copy(out, io.LimitReader(resp.Body, maxArchiveBytes)); err != nil {
		return fmt.Errorf("write archive file: %w", err)
	}
	return nil
}

// extractChromeBinary extracts the chrome/chrome.exe executable from the
// downloaded zip archive into destDir, returning its final path. Chrome
// for Testing archives nest the binary under a single top-level directory
// (e.g. "chrome-linux64/chrome"); only that one entry is extracted.
func extractChromeBinary(archivePath, destDir string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	wantName := "chrome"
	if runtime.GOOS == "windows" {
		wantName = "chrome.exe"
	}

	for _, f := range r.File {
		if filepath.Base(f.Name) != wantName || strings.HasSuffix(f.Name, "/") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		destPath := filepath.Join(destDir, wantName)
		out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
		if err != nil {
			rc.Close()
			return "", fmt.Errorf("create binary file: %w", err)
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return "", fmt.Errorf("extract binary: %w", copyErr)
		}
		if closeErr != nil {
			return "", fmt.Errorf("close extracted binary: %w", closeErr)
		}
		return destPath, nil
	}
	return "", fmt.Errorf("no %s entry found in archive", wantName)
}
