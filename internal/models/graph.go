package models

// NoteRef points at a note, optionally at the line an edge came from.
type NoteRef struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// LinkedNotes holds both link directions around one note.
type LinkedNotes struct {
	Outgoing []NoteRef `json:"outgoing"`
	Incoming []NoteRef `json:"incoming"`
}

// RelatedNote is a note sharing tags or people with another note.
type RelatedNote struct {
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	SharedCount int      `json:"shared_count"`
	Connections []string `json:"connections"`
}

// NoteContext is everything the graph knows about one note.
type NoteContext struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags"`
	Mentions  []string  `json:"mentions"`
	Outgoing  []NoteRef `json:"outgoing_links"`
	Backlinks []NoteRef `json:"backlinks"`
}

// NoteStats counts a note's outgoing edges.
type NoteStats struct {
	Path     string `json:"path"`
	Links    int    `json:"links"`
	Mentions int    `json:"mentions"`
	Tags     int    `json:"tags"`
}

// TagCount is a tag with the number of times notes use it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PersonCount is a person with their mention count.
type PersonCount struct {
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	MentionCount int    `json:"mention_count"`
}

// GraphStats are node and edge totals.
type GraphStats struct {
	Notes     int `json:"notes"`
	Persons   int `json:"persons"`
	Tags      int `json:"tags"`
	Links     int `json:"links"`
	Mentions  int `json:"mentions"`
	TagUsages int `json:"tag_usages"`
}

// LineMatch is one matching line of a content search.
type LineMatch struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// ContentMatch is a note whose text matched a content search.
type ContentMatch struct {
	Path    string      `json:"path"`
	Title   string      `json:"title"`
	Matches []LineMatch `json:"matches"`
}
