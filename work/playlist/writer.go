package playlist

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/types"
)

// DefaultCategory is the bucket assigned to channels whose group-title is
// missing or not listed in the configured category order. It ranks after
// every known category.
const DefaultCategory = "其他"

// backupPrefix marks additional sources of a channel beyond the primary
// URL, in the multi-source playlist convention APTV-style players accept.
const backupPrefix = "#EXTBURL:"

// SortByCategory orders channels by the index of their group-title in the
// configured category list. Unknown and missing categories all rank after
// the known ones. The sort is stable, so channels sharing a rank keep
// their relative input order.
func SortByCategory(channels []types.CanonicalChannel, categories []string) {
	rank := make(map[string]int, len(categories))
	for i, category := range categories {
		rank[category] = i
	}
	defaultRank := len(categories)

	categoryRank := func(c types.CanonicalChannel) int {
		group, ok := c.Attributes["group-title"]
		if !ok {
			group = DefaultCategory
		}
		if r, known := rank[group]; known {
			return r
		}
		return defaultRank
	}

	sort.SliceStable(channels, func(i, j int) bool {
		return categoryRank(channels[i]) < categoryRank(channels[j])
	})
}

// Write serializes the resolved channels to the destination playlist file,
// creating or overwriting it. The caller is responsible for the directory
// existing. Each channel gets one EXTINF metadata line followed by its
// primary URL and, for keep-top-K runs, one backup line per extra source.
//
// A run that resolved zero channels still writes the file (header only);
// producing the artifact is part of the contract even when it is empty.
func Write(channels []types.CanonicalChannel, categories []string, path string) error {
	SortByCategory(channels, categories)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")

	for _, channel := range channels {
		b.WriteString(buildEXTINF(channel))
		b.WriteByte('\n')
		for i, source := range channel.Sources {
			if i == 0 {
				b.WriteString(source.URL)
			} else {
				b.WriteString(backupPrefix)
				b.WriteString(source.URL)
			}
			b.WriteByte('\n')
		}
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write playlist %s: %w", path, err)
	}

	logger.Info("[WRITE] Wrote %d channels to %s", len(channels), path)
	return nil
}

// buildEXTINF renders the metadata line: every attribute except title as a
// key="value" pair (keys sorted for reproducible output), then the title
// after the comma.
func buildEXTINF(channel types.CanonicalChannel) string {
	keys := make([]string, 0, len(channel.Attributes))
	for key := range channel.Attributes {
		if key != "title" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("#EXTINF:-1")
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%q", key, channel.Attributes[key])
	}
	b.WriteByte(',')
	b.WriteString(channel.Name)
	return b.String()
}
