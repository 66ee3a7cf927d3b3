// Package extract pulls cross-note links, person mentions and tags out of
// markdown text. Every entity carries the 1-based line it was found on.
//
// Extraction is pure: it performs no I/O and never fails. Fragments that do
// not parse (an unterminated [[, a # inside a URL) simply produce nothing.
package extract

import (
	"regexp"
	"strings"

	"github.com/starford/mdgraph/internal/models"
)

var (
	// [[identifier]] or [[identifier|display]]. The identifier may not hold
	// brackets or a pipe, so "[[a [[b]]" yields only b.
	wikilinkRe = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]+))?\]\]`)
	mentionRe  = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9_-]*)`)
	// The "not preceded by / or =" rule is checked by hand in extractTags:
	// RE2 has no lookbehind.
	tagRe = regexp.MustCompile(`#([A-Za-z][A-Za-z0-9_-]*)`)
)

// emailSuffixes mark an @word as the domain half of an e-mail address.
var emailSuffixes = []string{"@", ".com", ".co", ".org", ".io", ".nl", ".uk"}

// ignoredTags are URL-fragment words that look like tags in pasted links.
var ignoredTags = map[string]struct{}{
	"gid":      {},
	"browse":   {},
	"edit":     {},
	"resource": {},
}

// Extract scans text line by line and returns every link, mention and tag in
// order of appearance.
func Extract(text string) models.Entities {
	lines := splitLines(text)
	fm := parseFrontmatter(lines)

	var out models.Entities
	for i, line := range lines {
		n := i + 1
		out.Links = append(out.Links, extractLinks(line, n)...)
		out.Mentions = append(out.Mentions, extractMentions(line, n)...)

		inline := extractTags(line, n)
		for _, name := range fm.tagsAt(n) {
			if !containsTag(inline, name) {
				out.Tags = append(out.Tags, models.TagRef{Name: name, Line: n})
			}
		}
		out.Tags = append(out.Tags, inline...)
	}
	return out
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func extractLinks(line string, n int) []models.LinkRef {
	var out []models.LinkRef
	for _, m := range wikilinkRe.FindAllStringSubmatch(line, -1) {
		target := strings.TrimSpace(m[1])
		if target == "" {
			continue
		}
		out = append(out, models.LinkRef{
			Target:  target,
			Display: strings.TrimSpace(m[2]),
			Line:    n,
		})
	}
	return out
}

func extractMentions(line string, n int) []models.MentionRef {
	var out []models.MentionRef
	for _, loc := range mentionRe.FindAllStringSubmatchIndex(line, -1) {
		if looksLikeEmail(line[loc[1]:]) {
			continue
		}
		out = append(out, models.MentionRef{Name: line[loc[2]:loc[3]], Line: n})
	}
	return out
}

func looksLikeEmail(rest string) bool {
	for _, s := range emailSuffixes {
		if strings.HasPrefix(rest, s) {
			return true
		}
	}
	return false
}

func extractTags(line string, n int) []models.TagRef {
	var out []models.TagRef
	for _, loc := range tagRe.FindAllStringSubmatchIndex(line, -1) {
		if start := loc[0]; start > 0 && (line[start-1] == '/' || line[start-1] == '=') {
			continue
		}
		name := line[loc[2]:loc[3]]
		if _, skip := ignoredTags[strings.ToLower(name)]; skip {
			continue
		}
		out = append(out, models.TagRef{Name: name, Line: n})
	}
	return out
}

func containsTag(tags []models.TagRef, name string) bool {
	for _, t := range tags {
		if strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

// Title derives a note title: frontmatter "title", else the first non-empty
// line with any heading marker removed, else the filename stem.
func Title(path, text string) string {
	lines := splitLines(text)
	fm := parseFrontmatter(lines)
	if fm.title != "" {
		return fm.title
	}
	for _, line := range lines[fm.end:] {
		if t := strings.TrimSpace(headingRe.ReplaceAllString(line, "")); t != "" {
			return t
		}
	}
	return models.StemOf(path)
}

var headingRe = regexp.MustCompile(`^#+\s+`)
