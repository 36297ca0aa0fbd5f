package utils

import (
	"net/url"
	"strings"
)

// LogURL returns either the original URL or an obfuscated version for logging
func LogURL(obfuscate bool, rawURL string) string {
	if obfuscate {
		return ObfuscateURL(rawURL)
	}
	return rawURL
}

// ObfuscateURL keeps scheme and host but hides path, query and fragment so
// stream URLs with embedded tokens can be logged safely.
func ObfuscateURL(urlStr string) string {
	if urlStr == "" {
		return ""
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		// If parsing fails, just obfuscate the whole thing
		return "***OBFUSCATED***"
	}

	result := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		result += "/***"
	}
	if u.RawQuery != "" {
		result += "?***"
	}
	if u.Fragment != "" {
		result += "#***"
	}

	return result
}

// SanitizeFilename replaces characters that are unsafe in filenames with
// underscores and collapses runs of underscores.
func SanitizeFilename(name string) string {
	sanitized := name
	replacements := map[string]string{
		" ":  "_",
		",":  "_",
		"\"": "",
		"'":  "",
		"/":  "_",
		"\\": "_",
		"?":  "_",
		"&":  "_",
		"=":  "_",
		":":  "_",
		";":  "_",
		"|":  "_",
		"*":  "_",
		"<":  "_",
		">":  "_",
	}

	for old, new := range replacements {
		sanitized = strings.ReplaceAll(sanitized, old, new)
	}

	// Remove consecutive underscores
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}

	return strings.Trim(sanitized, "_")
}
