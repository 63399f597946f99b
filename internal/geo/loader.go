package geo

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// LoadNeighborhoods resolves src to a local .shp file and loads it. src may
// be a .shp path, a .zip archive path, or an http(s) URL to a .zip archive.
// Downloads and extractions go under tempDir.
func LoadNeighborhoods(ctx context.Context, httpClient *http.Client, src, nameField, tempDir string) (*Neighborhoods, error) {
	if nameField == "" {
		nameField = "NAME"
	}
	shpPath, err := localShapefile(ctx, httpClient, src, tempDir)
	if err != nil {
		return nil, err
	}
	return LoadShapefile(shpPath, nameField)
}

func localShapefile(ctx context.Context, httpClient *http.Client, src, tempDir string) (string, error) {
	log := zap.L().With(zap.String("component", "geo.loader"))

	path := src
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		if httpClient == nil {
			httpClient = http.DefaultClient
		}
		path = filepath.Join(tempDir, filepath.Base(strings.SplitN(src, "?", 2)[0]))
		log.Info("downloading neighborhood shapefile", zap.String("url", src))
		if err := downloadFile(ctx, httpClient, src, path); err != nil {
			return "", eris.Wrap(err, "geo: download shapefile")
		}
	}

	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return path, nil
	}

	extractDir := filepath.Join(tempDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	if err := os.MkdirAll(extractDir, 0o755); err != nil {
		return "", eris.Wrap(err, "geo: create extract dir")
	}
	if err := extractZIP(path, extractDir); err != nil {
		return "", eris.Wrap(err, "geo: extract shapefile archive")
	}
	shpPath, err := findFileByExt(extractDir, ".shp")
	if err != nil {
		return "", eris.Wrap(err, "geo: find .shp file")
	}
	return shpPath, nil
}

// downloadFile downloads a URL to a local file.
func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "build request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("download returned status %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "create file")
	}
	defer f.Close() //nolint:errcheck

	if _, err := io.Copy(f, resp.Body); err != nil {
		return eris.Wrap(err, "write file")
	}
	return nil
}

// extractZIP flattens every file in a ZIP archive into destDir.
func extractZIP(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return eris.Wrap(err, "open zip")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := extractEntry(f, filepath.Join(destDir, filepath.Base(f.Name))); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, destPath string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "open zip entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return eris.Wrapf(err, "create %s", destPath)
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return eris.Wrapf(err, "extract %s", f.Name)
	}
	return nil
}

// findFileByExt finds the first file with the given extension in a directory.
func findFileByExt(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", eris.Wrap(err, "read directory")
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ext) {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", eris.Errorf("no %s file found in %s", ext, dir)
}
