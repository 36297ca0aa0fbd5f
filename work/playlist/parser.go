package playlist

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/grafana/regexp"
	"github.com/grafov/m3u8"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/types"
)

// attrRegex extracts key="value" pairs from an EXTINF metadata line.
var attrRegex = regexp.MustCompile(`([a-zA-Z][\w-]*)\s*=\s*"([^"]*)"`)

// ParseFile reads one source playlist from disk and parses it into channel
// records keyed by channel identity.
func ParseFile(path string) (map[string]*types.Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(data, name), nil
}

// Parse parses one playlist document into channel records. The channel
// identity key is tvg-id, then tvg-name, then the display title, whichever
// is present first; entries with none of the three are skipped.
//
// Documents that decode as an m3u8 master playlist contribute all their
// variant URIs as candidate URLs of a single channel named after the
// source; everything else goes through the EXTINF line scan.
func Parse(data []byte, sourceName string) map[string]*types.Channel {
	if playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(bytes.NewReader(data)), true); err == nil {
		if listType == m3u8.MASTER {
			return parseMaster(playlist.(*m3u8.MasterPlaylist), sourceName)
		}
	}
	return parseEXTM3U(data)
}

// parseMaster flattens a master playlist's variants into one channel whose
// candidate URLs are the variant URIs.
func parseMaster(master *m3u8.MasterPlaylist, sourceName string) map[string]*types.Channel {
	channel := types.NewChannel(map[string]string{"title": sourceName})
	for _, variant := range master.Variants {
		if variant == nil {
			break
		}
		channel.AddURL(variant.URI)
	}

	channels := make(map[string]*types.Channel)
	if len(channel.URLs) > 0 {
		channels[sourceName] = channel
	}
	logger.Debug("[PARSE] Master playlist '%s': %d variant URLs", sourceName, len(channel.URLs))
	return channels
}

// parseEXTM3U scans EXTINF metadata lines followed by URL lines. The URL
// may be separated from its EXTINF line by other comment lines, which some
// aggregated playlists emit.
func parseEXTM3U(data []byte) map[string]*types.Channel {
	channels := make(map[string]*types.Channel)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var currentAttrs map[string]string
	first := true

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			if !strings.HasPrefix(line, "#EXTM3U") {
				logger.Warn("[PARSE] Document has no #EXTM3U header, skipping")
				return channels
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXTINF"):
			currentAttrs = ParseEXTINF(line)
		case line == "" || strings.HasPrefix(line, "#"):
			// other directives and blanks do not reset the pending EXTINF
		default:
			if currentAttrs == nil {
				continue
			}
			addEntry(channels, currentAttrs, line)
			currentAttrs = nil
		}
	}

	return channels
}

// addEntry files one (attributes, url) pair under its identity key,
// merging candidate URLs when the key repeats within the document.
func addEntry(channels map[string]*types.Channel, attrs map[string]string, url string) {
	id := attrs["tvg-id"]
	if id == "" {
		id = attrs["tvg-name"]
	}
	if id == "" {
		id = attrs["title"]
	}
	if id == "" {
		return
	}

	if existing, ok := channels[id]; ok {
		existing.AddURL(url)
		return
	}
	channel := types.NewChannel(attrs)
	channel.AddURL(url)
	channels[id] = channel
}

// ParseEXTINF parses one EXTINF metadata line into its key="value"
// attributes plus the display title, stored under "title". The title
// follows the last comma outside of quotes.
func ParseEXTINF(line string) map[string]string {
	attrs := make(map[string]string)

	line = strings.TrimPrefix(line, "#EXTINF:")

	lastComma := -1
	inQuotes := false
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == '"' {
			inQuotes = !inQuotes
		} else if line[i] == ',' && !inQuotes {
			lastComma = i
			break
		}
	}

	attrPart := line
	if lastComma != -1 {
		attrPart = line[:lastComma]
		if title := strings.TrimSpace(line[lastComma+1:]); title != "" {
			attrs["title"] = title
		}
	}

	for _, match := range attrRegex.FindAllStringSubmatch(attrPart, -1) {
		attrs[match[1]] = match[2]
	}

	return attrs
}

// Merge folds the channels of one parsed document into the global set,
// appending candidate URLs (string-deduplicated) when a channel identity
// already exists.
func Merge(all, parsed map[string]*types.Channel) {
	for id, channel := range parsed {
		if existing, ok := all[id]; ok {
			for _, url := range channel.URLs {
				existing.AddURL(url)
			}
			continue
		}
		all[id] = channel
	}
}
