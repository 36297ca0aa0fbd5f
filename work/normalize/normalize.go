package normalize

import (
	"strings"

	"github.com/grafana/regexp"

	"iptv-organizer/work/config"
	"iptv-organizer/work/logger"
)

// rule is one compiled entry of the channel name table.
type rule struct {
	pattern   *regexp.Regexp
	canonical string
}

// Normalizer maps the many textual variants of a channel's display name
// onto one canonical name. The table is an ordered list of rules evaluated
// top to bottom with first-match-wins semantics; a keyed map is
// deliberately not used because map iteration order would make the result
// depend on the runtime.
//
// The table is authored so that no canonical (right-hand) name matches a
// pattern belonging to a different canonical value, which is what makes
// Normalize idempotent.
type Normalizer struct {
	rules []rule
}

// New compiles the configured name table. Patterns are matched against the
// lowercased title, so they should be written in lowercase. Invalid
// patterns are logged and skipped rather than failing the run (same policy
// the source filters use for user-supplied regexes).
func New(table []config.ChannelNameRule) *Normalizer {
	rules := make([]rule, 0, len(table))
	for _, entry := range table {
		compiled, err := regexp.Compile(entry.Pattern)
		if err != nil {
			logger.Error("[NORMALIZE] Failed to compile pattern '%s': %v", entry.Pattern, err)
			continue
		}
		rules = append(rules, rule{pattern: compiled, canonical: entry.Name})
	}
	return &Normalizer{rules: rules}
}

// Normalize returns the canonical name for the first rule whose pattern
// matches the lowercased input, or the input unchanged when no rule
// matches. It is total: any string, including the empty string, goes in
// and a string comes out.
func (n *Normalizer) Normalize(name string) string {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, r := range n.rules {
		if r.pattern.MatchString(lowered) {
			return r.canonical
		}
	}
	return name
}
