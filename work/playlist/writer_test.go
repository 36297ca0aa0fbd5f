package playlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"iptv-organizer/work/types"
)

func canonical(name, group string, urls ...string) types.CanonicalChannel {
	attrs := map[string]string{"title": name}
	if group != "" {
		attrs["group-title"] = group
	}
	sources := make([]types.RankedSource, 0, len(urls))
	for _, url := range urls {
		sources = append(sources, types.RankedSource{URL: url, Latency: types.MeasuredLatency(time.Millisecond)})
	}
	return types.CanonicalChannel{Name: name, Attributes: attrs, Sources: sources}
}

func TestSortByCategory(t *testing.T) {
	channels := []types.CanonicalChannel{
		canonical("Kids One", "Kids", "http://k/1"),
		canonical("Morning News", "News", "http://n/1"),
		canonical("Obscure", "Cooking", "http://o/1"),
		canonical("Grandstand", "Sports", "http://s/1"),
		canonical("Evening News", "News", "http://n/2"),
		canonical("No Group", "", "http://x/1"),
	}

	SortByCategory(channels, []string{"News", "Sports", "Kids"})

	got := make([]string, len(channels))
	for i, c := range channels {
		got[i] = c.Name
	}
	// unknown and missing categories rank last, stable within each rank
	require.Equal(t, []string{
		"Morning News", "Evening News", "Grandstand", "Kids One", "Obscure", "No Group",
	}, got)
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.m3u")
	channels := []types.CanonicalChannel{
		{
			Name: "CCTV-5 体育",
			Attributes: map[string]string{
				"title":       "CCTV-5 体育",
				"tvg-id":      "cctv5",
				"group-title": "Sports",
			},
			Sources: []types.RankedSource{
				{URL: "http://primary/5", Latency: types.MeasuredLatency(100 * time.Millisecond)},
				{URL: "http://backup/5a", Latency: types.MeasuredLatency(200 * time.Millisecond)},
				{URL: "http://backup/5b", Latency: types.MeasuredLatency(300 * time.Millisecond)},
			},
		},
		canonical("Morning News", "News", "http://n/1"),
	}

	require.NoError(t, Write(channels, []string{"News", "Sports"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Equal(t, []string{
		"#EXTM3U",
		`#EXTINF:-1 group-title="News",Morning News`,
		"http://n/1",
		`#EXTINF:-1 group-title="Sports" tvg-id="cctv5",CCTV-5 体育`,
		"http://primary/5",
		"#EXTBURL:http://backup/5a",
		"#EXTBURL:http://backup/5b",
	}, lines)
}

func TestWrite_EmptyListStillProducesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.m3u")

	require.NoError(t, Write(nil, []string{"News"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "#EXTM3U\n", string(data))
}

func TestWrite_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.m3u")
	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0644))

	require.NoError(t, Write([]types.CanonicalChannel{canonical("BBC", "News", "http://b/1")}, []string{"News"}, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "stale")
	require.Contains(t, string(data), "http://b/1")
}
