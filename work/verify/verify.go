package verify

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/metrics"
	"iptv-organizer/work/probe"
	"iptv-organizer/work/utils"
)

// identityArgs asks the inspector for program and stream metadata so the
// embedded service name can be compared against the declared title. The
// caller's timeout keeps this much shorter than a liveness probe.
var identityArgs = []string{
	"-v", "quiet",
	"-print_format", "json",
	"-show_programs",
	"-show_streams",
}

// identityPayload is the subset of inspector output carrying the
// self-reported names. Program tags take priority over stream tags.
type identityPayload struct {
	Programs []struct {
		Tags map[string]string `json:"tags"`
	} `json:"programs"`
	Streams []struct {
		Tags map[string]string `json:"tags"`
	} `json:"streams"`
}

// Verifier cross-checks a stream's embedded service metadata against its
// declared channel name to reject spoofed or mislabeled sources. Only
// channels whose title matches a suspicion keyword or the national
// broadcaster prefix are checked at all; verifying every channel would be
// prohibitively slow, so everything else is trusted.
//
// FailOpen controls the error path: when true (the default policy), any
// inability to inspect the stream counts as verified. Discarding a good
// stream over a transient probe failure costs more than letting a
// mislabeled one through.
type Verifier struct {
	runner    probe.Runner
	timeout   time.Duration
	keywords  []string // lowercased suspicion keywords
	prefix    string   // lowercased broadcaster prefix, e.g. "cctv"
	obfuscate bool
	FailOpen  bool
}

// New builds a Verifier. Keywords and prefix are lowercased once here so
// matching stays case-insensitive without repeated conversions.
func New(runner probe.Runner, timeout time.Duration, keywords []string, prefix string, obfuscate bool) *Verifier {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Verifier{
		runner:    runner,
		timeout:   timeout,
		keywords:  lowered,
		prefix:    strings.ToLower(prefix),
		obfuscate: obfuscate,
		FailOpen:  true,
	}
}

// ShouldVerify reports whether the declared title triggers verification:
// a case-insensitive substring hit on any suspicion keyword, or on the
// broadcaster prefix.
func (v *Verifier) ShouldVerify(title string) bool {
	lowered := strings.ToLower(title)
	if v.prefix != "" && strings.Contains(lowered, v.prefix) {
		return true
	}
	for _, kw := range v.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// Verify inspects the stream's embedded metadata and decides whether it
// plausibly is the channel it claims to be.
//
// Rules, in order:
//   - no actual name recoverable -> cannot evaluate -> FailOpen policy
//   - declared contains the broadcaster prefix but actual does not -> reject
//   - token sets (CJK characters as atomic tokens) share nothing -> reject
//   - otherwise -> verified
func (v *Verifier) Verify(ctx context.Context, url, declared string) bool {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	out, err := v.runner.Inspect(ctx, url, identityArgs...)
	if err != nil {
		logger.Debug("[VERIFY] Inspection failed for %s, fail-open=%v: %v",
			utils.LogURL(v.obfuscate, url), v.FailOpen, err)
		metrics.VerificationsTotal.WithLabelValues("fail_open").Inc()
		return v.FailOpen
	}

	var payload identityPayload
	if err := json.Unmarshal(out, &payload); err != nil {
		logger.Debug("[VERIFY] Malformed metadata for %s, fail-open=%v: %v",
			utils.LogURL(v.obfuscate, url), v.FailOpen, err)
		metrics.VerificationsTotal.WithLabelValues("fail_open").Inc()
		return v.FailOpen
	}

	actual := extractActualName(payload)
	if actual == "" {
		// No service metadata to cross-check; treat like a probe failure.
		metrics.VerificationsTotal.WithLabelValues("fail_open").Inc()
		return v.FailOpen
	}

	declaredLower := strings.ToLower(declared)
	actualLower := strings.ToLower(actual)

	if v.prefix != "" && strings.Contains(declaredLower, v.prefix) && !strings.Contains(actualLower, v.prefix) {
		logger.Info("[VERIFY] Rejected %s: declared '%s' but stream reports '%s'",
			utils.LogURL(v.obfuscate, url), declared, actual)
		metrics.VerificationsTotal.WithLabelValues("rejected").Inc()
		return false
	}

	if !tokensOverlap(declaredLower, actualLower) {
		logger.Info("[VERIFY] Rejected %s: no name overlap between '%s' and '%s'",
			utils.LogURL(v.obfuscate, url), declared, actual)
		metrics.VerificationsTotal.WithLabelValues("rejected").Inc()
		return false
	}

	metrics.VerificationsTotal.WithLabelValues("verified").Inc()
	return true
}

// extractActualName pulls the stream's self-reported name from the
// metadata, preferring program tags over stream tags and service_name
// over title within each.
func extractActualName(payload identityPayload) string {
	for _, program := range payload.Programs {
		if name := pickNameTag(program.Tags); name != "" {
			return name
		}
	}
	for _, stream := range payload.Streams {
		if name := pickNameTag(stream.Tags); name != "" {
			return name
		}
	}
	return ""
}

func pickNameTag(tags map[string]string) string {
	for _, key := range []string{"service_name", "title"} {
		if value := strings.TrimSpace(tags[key]); value != "" {
			return value
		}
	}
	return ""
}

// tokensOverlap reports whether the two names share at least one token.
// ASCII letter/digit runs form one token each; every CJK character is its
// own atomic token, since Chinese channel names have no word separators.
func tokensOverlap(a, b string) bool {
	tokensA := tokenize(a)
	if len(tokensA) == 0 {
		return false
	}
	for token := range tokenize(b) {
		if _, ok := tokensA[token]; ok {
			return true
		}
	}
	return false
}

func tokenize(name string) map[string]struct{} {
	tokens := make(map[string]struct{})
	var run []rune
	flush := func() {
		if len(run) > 0 {
			tokens[string(run)] = struct{}{}
			run = run[:0]
		}
	}
	for _, r := range name {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens[string(r)] = struct{}{}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			run = append(run, r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}
