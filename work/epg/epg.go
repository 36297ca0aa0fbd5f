package epg

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/klauspost/compress/gzip"

	"iptv-organizer/work/client"
	"iptv-organizer/work/logger"
	"iptv-organizer/work/types"
)

// Entry is one channel's metadata as published by an XMLTV guide.
type Entry struct {
	ID   string
	Name string
	Icon string
}

// Guide indexes the channels of all downloaded XMLTV documents, both by
// their guide id and by a simplified display name for fuzzy lookups.
type Guide struct {
	channels map[string]Entry  // guide id -> entry
	index    map[string]string // simplified display name -> guide id
}

// xmltvDocument is the subset of XMLTV we consume; programme data is
// irrelevant to enrichment and skipped by the decoder.
type xmltvDocument struct {
	Channels []struct {
		ID          string `xml:"id,attr"`
		DisplayName string `xml:"display-name"`
		Icon        struct {
			Src string `xml:"src,attr"`
		} `xml:"icon"`
	} `xml:"channel"`
}

// Download fetches and parses every guide URL. Guides are best-effort
// enrichment data: every failure (download, gunzip, XML) is logged and the
// URL skipped, and an empty Guide is a normal outcome.
func Download(ctx context.Context, httpClient *client.HeaderSettingClient, urls []string) *Guide {
	guide := &Guide{
		channels: make(map[string]Entry),
		index:    make(map[string]string),
	}

	for _, guideURL := range urls {
		if err := guide.load(ctx, httpClient, guideURL); err != nil {
			logger.Error("[EPG] Failed to load guide %s: %v", guideURL, err)
		}
	}

	logger.Info("[EPG] Guide loaded: %d channels indexed", len(guide.channels))
	return guide
}

func (g *Guide) load(ctx context.Context, httpClient *client.HeaderSettingClient, guideURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, guideURL, nil)
	if err != nil {
		return err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if strings.HasSuffix(guideURL, ".gz") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return err
		}
		defer gz.Close()
		reader = gz
	}

	var doc xmltvDocument
	if err := xml.NewDecoder(reader).Decode(&doc); err != nil {
		return err
	}

	added := 0
	for _, channel := range doc.Channels {
		if channel.ID == "" {
			continue
		}
		entry, exists := g.channels[channel.ID]
		if !exists {
			entry = Entry{ID: channel.ID, Name: channel.DisplayName, Icon: channel.Icon.Src}
			g.channels[channel.ID] = entry
			added++
		} else if entry.Icon == "" && channel.Icon.Src != "" {
			// a later guide may supply the icon an earlier one lacked
			entry.Icon = channel.Icon.Src
			g.channels[channel.ID] = entry
		}
		if simple := SimplifyName(entry.Name); simple != "" {
			if _, taken := g.index[simple]; !taken {
				g.index[simple] = channel.ID
			}
		}
	}

	logger.Debug("[EPG] Parsed %d channels from %s", added, guideURL)
	return nil
}

// Enrich fills tvg-id and missing tvg-logo attributes on the parsed
// channels, matching first by guide id, then by simplified title, then by
// substring containment. Returns how many channels were matched.
func (g *Guide) Enrich(channels map[string]*types.Channel) int {
	matched := 0

	for id, channel := range channels {
		if entry, ok := g.channels[id]; ok {
			apply(channel, entry)
			matched++
			continue
		}

		simpleTitle := SimplifyName(channel.Title())
		if guideID, ok := g.index[simpleTitle]; ok {
			apply(channel, g.channels[guideID])
			matched++
			continue
		}

		if entry, ok := g.fuzzyMatch(simpleTitle); ok {
			apply(channel, entry)
			matched++
		}
	}

	logger.Info("[EPG] Enriched %d of %d channels", matched, len(channels))
	return matched
}

// fuzzyMatch looks for an index entry contained in the title or, for
// titles long enough to be meaningful, containing it.
func (g *Guide) fuzzyMatch(simpleTitle string) (Entry, bool) {
	if simpleTitle == "" {
		return Entry{}, false
	}
	for simpleName, guideID := range g.index {
		if strings.Contains(simpleTitle, simpleName) ||
			(strings.Contains(simpleName, simpleTitle) && len([]rune(simpleTitle)) > 3) {
			return g.channels[guideID], true
		}
	}
	return Entry{}, false
}

func apply(channel *types.Channel, entry Entry) {
	channel.Attributes["tvg-id"] = entry.ID
	if channel.Attributes["tvg-logo"] == "" && entry.Icon != "" {
		channel.Attributes["tvg-logo"] = entry.Icon
	}
}

// nameReplacements folds common channel-name synonyms before matching.
// Applied to the lowercased, stripped name in this fixed order.
var nameReplacements = []struct {
	old string
	new string
}{
	{"central", "cctv"},
	{"television", "tv"},
	{"channel", ""},
	{"hong", "hk"},
}

// SimplifyName reduces a display name to a matching key: lowercased, with
// everything except letters, digits and CJK characters removed, and common
// synonyms folded.
func SimplifyName(name string) string {
	if name == "" {
		return ""
	}

	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Han, r) {
			b.WriteRune(r)
		}
	}

	simplified := b.String()
	for _, rep := range nameReplacements {
		simplified = strings.ReplaceAll(simplified, rep.old, rep.new)
	}
	return simplified
}
