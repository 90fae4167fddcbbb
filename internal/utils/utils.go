package utils

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
)

var Log = logrus.New()

func SetLogLevel(level string) {
	// We are not using logrus' trace and panic levels
	switch strings.ToLower(level) {
	case "debug":
		Log.SetLevel(log.DebugLevel)
	case "info":
		Log.SetLevel(log.InfoLevel)
	case "warning", "warn":
		Log.SetLevel(log.WarnLevel)
	case "error":
		Log.SetLevel(log.ErrorLevel)
	case "fatal":
		Log.SetLevel(log.FatalLevel)
	default:
		log.Fatal("Bad error level string")
	}
}

var (
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)
	spaceRe    = regexp.MustCompile(`\s+`)
)

// StripHTML replaces markup tags with spaces so tag boundaries don't glue
// words together.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}
	return tagRe.ReplaceAllString(html, " ")
}

// unicodeDashes maps the dash and slash variants the outlet uses in product
// copy to their ASCII forms before normalization.
var unicodeDashes = strings.NewReplacer(
	"‑", "-", // non-breaking hyphen
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"／", "/", // fullwidth solidus
)

// NormalizeText lowercases text and collapses everything that isn't a
// letter or digit into single spaces. Keyword and size comparisons all go
// through this so "GORE-TEX" matches "gore tex".
func NormalizeText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ToLower(unicodeDashes.Replace(text))
	text = nonAlnumRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// SizeLabelMatches reports whether a size option label refers to the same
// size as the target. Numeric labels compare as floats so "8.0" matches
// "8"; everything else compares as normalized text.
func SizeLabelMatches(optionLabel, targetSize string) bool {
	optionLabel = strings.TrimSpace(optionLabel)
	targetSize = strings.TrimSpace(targetSize)

	a, errA := strconv.ParseFloat(optionLabel, 64)
	b, errB := strconv.ParseFloat(targetSize, 64)
	if errA == nil && errB == nil {
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		return diff < 1e-9
	}

	return NormalizeText(optionLabel) == NormalizeText(targetSize)
}

// MatchesAnyKeyword reports whether any keyword occurs in the haystack
// after normalization. An empty keyword list matches everything.
func MatchesAnyKeyword(haystack string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	hay := NormalizeText(haystack)
	if hay == "" {
		return false
	}
	for _, keyword := range keywords {
		needle := NormalizeText(keyword)
		if needle != "" && strings.Contains(hay, needle) {
			return true
		}
	}
	return false
}

// DedupeStrings returns the slice with duplicates and empty entries
// removed, keeping first-seen order.
func DedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SplitCSV splits a comma- or newline-separated string into trimmed,
// non-empty parts.
func SplitCSV(value string) []string {
	var parts []string
	for _, raw := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == '\n' }) {
		if item := strings.TrimSpace(raw); item != "" {
			parts = append(parts, item)
		}
	}
	return parts
}
