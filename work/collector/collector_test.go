package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"iptv-organizer/work/client"
)

const samplePlaylist = "#EXTM3U\n#EXTINF:-1,Test\nhttp://host/stream\n"

func TestCollect_DownloadsRemoteSources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Write([]byte(samplePlaylist))
	}))
	defer server.Close()

	sourcesDir := t.TempDir()
	c := New(client.NewHeaderSettingClient("test-agent"), []string{server.URL + "/provider/list.m3u"}, sourcesDir, false)

	collected := c.Collect(context.Background())
	require.Len(t, collected, 1)

	data, err := os.ReadFile(collected[0])
	require.NoError(t, err)
	require.Equal(t, samplePlaylist, string(data))
}

func TestCollect_LocalPathPassthrough(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "local.m3u")
	require.NoError(t, os.WriteFile(local, []byte(samplePlaylist), 0644))

	c := New(client.NewHeaderSettingClient("test-agent"), []string{local, "file://" + local}, t.TempDir(), false)

	collected := c.Collect(context.Background())
	require.Equal(t, []string{local, local}, collected)
}

func TestCollect_MissingLocalSourceSkipped(t *testing.T) {
	c := New(client.NewHeaderSettingClient("test-agent"), []string{filepath.Join(t.TempDir(), "gone.m3u")}, t.TempDir(), false)

	require.Empty(t, c.Collect(context.Background()))
}

func TestCollect_FailedDownloadSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ok.m3u" {
			w.Write([]byte(samplePlaylist))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sources := []string{server.URL + "/missing.m3u", server.URL + "/ok.m3u"}
	c := New(client.NewHeaderSettingClient("test-agent"), sources, t.TempDir(), false)

	collected := c.Collect(context.Background())
	require.Len(t, collected, 1)
	require.Contains(t, collected[0], "ok.m3u")
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"http://iptv.example.com/lists/china.m3u":  "example_china.m3u",
		"http://iptv.example.com/lists/china.m3u8": "example_china.m3u8",
		"http://cdn.provider.net/live.txt":         "provider_live.txt.m3u",
		"http://example.com/":                      "example_playlist.m3u",
	}
	for input, want := range cases {
		require.Equal(t, want, filenameFromURL(input), "url %s", input)
	}
}
