package collector

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"iptv-organizer/work/client"
	"iptv-organizer/work/logger"
	"iptv-organizer/work/utils"
)

// Collector downloads every configured source playlist into the sources
// directory and hands the local paths to the parsing stage. Acquisition is
// deliberately tolerant: a source that fails to download is logged and
// skipped, never fatal. Entries that are local file paths are passed
// through untouched, which is how tests and offline runs feed playlists in.
type Collector struct {
	httpClient *client.HeaderSettingClient
	sources    []string
	sourcesDir string
	obfuscate  bool
}

// New builds a Collector writing downloads under sourcesDir.
func New(httpClient *client.HeaderSettingClient, sources []string, sourcesDir string, obfuscate bool) *Collector {
	return &Collector{
		httpClient: httpClient,
		sources:    sources,
		sourcesDir: sourcesDir,
		obfuscate:  obfuscate,
	}
}

// Collect downloads all remote sources and returns the local file paths of
// everything that is available for parsing, downloads and local files
// alike.
func (c *Collector) Collect(ctx context.Context) []string {
	logger.Info("[COLLECT] Collecting %d sources", len(c.sources))

	if err := os.MkdirAll(c.sourcesDir, 0755); err != nil {
		logger.Error("[COLLECT] Cannot create sources dir %s: %v", c.sourcesDir, err)
		return nil
	}

	var collected []string
	for _, source := range c.sources {
		if isLocal(source) {
			localPath := strings.TrimPrefix(source, "file://")
			if _, err := os.Stat(localPath); err != nil {
				logger.Error("[COLLECT] Local source missing: %s", localPath)
				continue
			}
			collected = append(collected, localPath)
			continue
		}

		localPath, err := c.download(ctx, source)
		if err != nil {
			logger.Error("[COLLECT] Failed to download %s: %v", utils.LogURL(c.obfuscate, source), err)
			continue
		}
		collected = append(collected, localPath)
	}

	logger.Info("[COLLECT] Collected %d of %d sources", len(collected), len(c.sources))
	return collected
}

// download fetches one source playlist and writes it under the sources
// dir, returning the local path.
func (c *Collector) download(ctx context.Context, sourceURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{status: resp.StatusCode}
	}

	localPath := filepath.Join(c.sourcesDir, filenameFromURL(sourceURL))
	out, err := os.Create(localPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}

	logger.Debug("[COLLECT] Saved %s -> %s", utils.LogURL(c.obfuscate, sourceURL), localPath)
	return localPath, nil
}

type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + http.StatusText(e.status)
}

// isLocal reports whether a source entry is a filesystem path rather than
// something to download.
func isLocal(source string) bool {
	if strings.HasPrefix(source, "file://") {
		return true
	}
	return !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://")
}

// filenameFromURL derives a cache filename from the source URL: the path
// basename, given an .m3u extension when it has none, prefixed with a
// domain label so two providers' "index.m3u" files do not collide.
func filenameFromURL(sourceURL string) string {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return utils.SanitizeFilename(sourceURL) + ".m3u"
	}

	filename := path.Base(strings.Trim(parsed.Path, "/"))
	if filename == "." || filename == "/" || filename == "" {
		filename = "playlist"
	}
	if !strings.HasSuffix(filename, ".m3u") && !strings.HasSuffix(filename, ".m3u8") {
		filename += ".m3u"
	}

	labels := strings.Split(parsed.Hostname(), ".")
	domain := parsed.Hostname()
	if len(labels) > 1 {
		domain = labels[len(labels)-2]
	}

	return utils.SanitizeFilename(domain + "_" + filename)
}
