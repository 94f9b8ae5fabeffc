// Package titleparse extracts episode, season, release-group and checksum
// facts from raw release titles. Everything here is a pure function; the
// matching pipeline in internal/releases decides what to do with the facts.
package titleparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Episode patterns, ordered. The first pattern that matches wins.
var episodePatterns = []*regexp.Regexp{
	// Explicit season/episode marker: S01E05, s2e12
	regexp.MustCompile(`(?i)\bS\d{1,2}E(\d{1,3})\b`),
	// Spelled-out marker: "Episode 5"
	regexp.MustCompile(`(?i)\bEpisode[ ._]*(\d{1,3})\b`),
	// Dash-separated number before quality/codec tokens: "Show - 05 (1080p)"
	regexp.MustCompile(`- ?(\d{1,3})(?:v\d)?\s*(?:[\(\[][^\)\]]*[\)\]]\s*)*(?:\.\w{2,4})?$`),
	// Bare trailing number, tolerating a version suffix: "Show 05v2 [720p]"
	regexp.MustCompile(`\b(\d{1,3})(?:v\d)?\s*(?:[\(\[][^\)\]]*[\)\]]\s*)*(?:\.\w{2,4})?$`),
}

var seasonPatterns = []*regexp.Regexp{
	// SxxEyy marker
	regexp.MustCompile(`(?i)\bS(\d{1,2})E\d{1,3}\b`),
	// "Season 2 Episode 5"
	regexp.MustCompile(`(?i)\bSeason[ ._]*(\d{1,2})[ ._]*Episode\b`),
	// Ordinal word: "2nd Season", "Second Season"
	regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)[ ._]*Season\b`),
	regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)[ ._]*Season\b`),
	// Bare season marker: "S2" not followed by an episode
	regexp.MustCompile(`(?i)\bS(\d{1,2})\b`),
}

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var (
	groupPattern    = regexp.MustCompile(`^\[([^\]]+)\]`)
	checksumPattern = regexp.MustCompile(`\[([0-9A-Fa-f]{8})\]`)
	// Trailing digit of the segment preceding the episode marker:
	// "Title 2 - 05" parses season 2.
	trailingDigitPattern = regexp.MustCompile(`(\d{1,2})\s*$`)

	normalizeBrackets   = regexp.MustCompile(`\[[^\]]*\]|\([^\)]*\)`)
	normalizePunct      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	normalizeWhitespace = regexp.MustCompile(`\s+`)
)

// Episode returns the episode number parsed from a release title, and false
// when no pattern matches. Leading zeros are stripped by integer parsing.
func Episode(title string) (int, bool) {
	for _, p := range episodePatterns {
		if m := p.FindStringSubmatch(title); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return n, true
		}
	}
	return 0, false
}

// episodeMatchStart returns the byte offset of the earliest episode-pattern
// match in the title, and false when no pattern matches at all.
func episodeMatchStart(title string) (int, bool) {
	earliest := -1
	for _, p := range episodePatterns {
		if loc := p.FindStringIndex(title); loc != nil {
			if earliest == -1 || loc[0] < earliest {
				earliest = loc[0]
			}
		}
	}
	if earliest == -1 {
		return 0, false
	}
	return earliest, true
}

// NameBeforeEpisode truncates the title at its earliest episode-pattern
// match, recovering the name segment the exact-name gate compares against.
// The full title is returned when nothing episode-like is found.
func NameBeforeEpisode(title string) string {
	idx, ok := episodeMatchStart(title)
	if !ok {
		return title
	}
	return title[:idx]
}

// Season returns the season number parsed from a release title. When no
// pattern matches, the fallback is the trailing digit of the segment before
// the episode marker, then season 1.
func Season(title string) int {
	for _, p := range seasonPatterns {
		m := p.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		if n, ok := ordinalWords[strings.ToLower(m[1])]; ok {
			return n
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if idx, ok := episodeMatchStart(title); ok {
		segment := strings.TrimRight(strings.TrimSpace(title[:idx]), "-")
		if m := trailingDigitPattern.FindStringSubmatch(strings.TrimSpace(segment)); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 1
}

// Group returns the release-group name from the leading bracketed token.
func Group(title string) (string, bool) {
	m := groupPattern.FindStringSubmatch(strings.TrimSpace(title))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Checksum returns the 8-character hexadecimal token found inside brackets,
// upper-cased.
func Checksum(title string) (string, bool) {
	m := checksumPattern.FindStringSubmatch(title)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]), true
}

// Normalize lower-cases a title, strips bracketed content and punctuation,
// and collapses whitespace. Two titles that normalize equal are treated as
// the same name by the exact-name gate.
func Normalize(s string) string {
	s = normalizeBrackets.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = normalizePunct.ReplaceAllString(s, " ")
	s = normalizeWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
