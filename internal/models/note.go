// Package models defines the domain types shared across mdgraph.
package models

import (
	"path"
	"strings"
	"time"
)

// Note is a Note node as stored in the graph.
type Note struct {
	Path         string `json:"path"`
	Title        string `json:"title"`
	Filename     string `json:"filename"`
	Stem         string `json:"stem"`
	LastModified string `json:"last_modified,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
	Placeholder  bool   `json:"placeholder"`
}

// NoteMetadata describes a vault file without reading it. Path is relative
// to the vault root and slash-separated.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LinkRef is a [[wikilink]] occurrence. TargetPath, when set by the caller,
// takes precedence over Target for resolution.
type LinkRef struct {
	Target     string `json:"target"`
	TargetPath string `json:"target_path,omitempty"`
	Display    string `json:"display,omitempty"`
	Line       int    `json:"line_number"`
}

// Identifier is the key used to resolve the link target.
func (l LinkRef) Identifier() string {
	if p := strings.TrimSpace(l.TargetPath); p != "" {
		return p
	}
	return strings.TrimSpace(l.Target)
}

// MentionRef is an @person occurrence.
type MentionRef struct {
	Name string `json:"name"`
	Line int    `json:"line_number"`
}

// TagRef is a #tag occurrence.
type TagRef struct {
	Name string `json:"name"`
	Line int    `json:"line_number"`
}

// Entities groups everything extracted from one note.
type Entities struct {
	Links    []LinkRef    `json:"wikilinks"`
	Mentions []MentionRef `json:"mentions"`
	Tags     []TagRef     `json:"hashtags"`
}

// FilenameOf returns the last element of a slash- or backslash-separated path.
func FilenameOf(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return path.Base(strings.TrimRight(p, "/"))
}

// LinkMatches reports whether a link or placeholder keyed key refers to the
// note at notePath. Absolute keys match only that exact path. Relative keys
// match case-insensitively on whole trailing segments, with or without the
// ".md" extension, so "b" and "sub/b.md" both match "/v/sub/b.md".
func LinkMatches(key, notePath string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if key == notePath {
		return true
	}
	k := strings.ToLower(strings.ReplaceAll(key, `\`, "/"))
	if isAbs(k) {
		return false
	}
	p := "/" + strings.TrimPrefix(strings.ToLower(strings.ReplaceAll(notePath, `\`, "/")), "/")
	suffix := "/" + strings.TrimPrefix(k, "/")
	return strings.HasSuffix(p, suffix) || strings.HasSuffix(p, suffix+".md")
}

// IsAbsKey reports whether a link key names a full path.
func IsAbsKey(key string) bool {
	return isAbs(strings.ReplaceAll(strings.TrimSpace(key), `\`, "/"))
}

func isAbs(p string) bool {
	if strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && p[2] == '/' &&
		(p[0] >= 'a' && p[0] <= 'z' || p[0] >= 'A' && p[0] <= 'Z')
}

// StemOf returns the lowercased filename without a trailing ".md".
func StemOf(p string) string {
	name := FilenameOf(p)
	if strings.HasSuffix(strings.ToLower(name), ".md") {
		name = name[:len(name)-3]
	}
	return strings.ToLower(strings.TrimSpace(name))
}

// PersonKey normalizes a handle or tag name into its node key.
func PersonKey(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "@")))
}

// TagKey normalizes a tag name into its node key.
func TagKey(name string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "#")))
}

// PersonNoteOwner reports the person a note under a "people" directory
// describes, keyed by the note's stem.
func PersonNoteOwner(p string) (string, bool) {
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.Contains(p, "/people/") && !strings.HasPrefix(p, "people/") {
		return "", false
	}
	stem := StemOf(p)
	return stem, stem != ""
}
