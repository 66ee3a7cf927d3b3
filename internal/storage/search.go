package storage

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/starford/mdgraph/internal/extract"
	"github.com/starford/mdgraph/internal/models"
)

const (
	maxLinesPerNote = 3
	maxLineLen      = 100
)

// Search returns notes whose text contains query, case-insensitively, in
// path order. At most maxLinesPerNote lines are reported per note.
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]models.ContentMatch, error) {
	out := []models.ContentMatch{}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || limit <= 0 {
		return out, nil
	}
	metas, err := c.List("")
	if err != nil {
		return nil, err
	}
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := c.ReadFresh(m)
		if err != nil {
			continue
		}
		text := string(data)
		if !strings.Contains(strings.ToLower(text), needle) {
			continue
		}
		notePath := c.NotePath(m.Path)
		out = append(out, models.ContentMatch{
			Path:    notePath,
			Title:   extract.Title(notePath, text),
			Matches: matchingLines(text, needle),
		})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matchingLines(text, needle string) []models.LineMatch {
	var out []models.LineMatch
	for i, line := range strings.Split(text, "\n") {
		if !strings.Contains(strings.ToLower(line), needle) {
			continue
		}
		out = append(out, models.LineMatch{Line: i + 1, Text: truncate(strings.TrimSpace(line), maxLineLen)})
		if len(out) == maxLinesPerNote {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
