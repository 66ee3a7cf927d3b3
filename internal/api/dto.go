package api

import "github.com/starford/mdgraph/internal/models"

// NoteListResponse wraps note references.
type NoteListResponse struct {
	Notes []models.NoteRef `json:"notes"`
}

// RelatedResponse wraps related notes.
type RelatedResponse struct {
	Notes []models.RelatedNote `json:"notes"`
}

// TagsResponse wraps tag usage counts.
type TagsResponse struct {
	Tags []models.TagCount `json:"tags"`
}

// PeopleResponse wraps person mention counts.
type PeopleResponse struct {
	People []models.PersonCount `json:"people"`
}

// SearchResponse wraps content matches.
type SearchResponse struct {
	Results []models.ContentMatch `json:"results"`
}
