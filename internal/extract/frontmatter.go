package extract

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatter is what extraction needs from a leading YAML block.
type frontmatter struct {
	title string
	tags  map[int][]string // source line -> tag names
	end   int              // index of the first body line
}

func (f frontmatter) tagsAt(line int) []string {
	return f.tags[line]
}

// parseFrontmatter reads a YAML block delimited by "---" lines at the very
// top of the note. A missing closing delimiter or invalid YAML means there is
// no frontmatter.
func parseFrontmatter(lines []string) frontmatter {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return frontmatter{}
	}
	closing := -1
	for i := 1; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i]); t == "---" || t == "..." {
			closing = i
			break
		}
	}
	if closing < 0 {
		return frontmatter{}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closing], "\n")), &doc); err != nil {
		return frontmatter{}
	}
	fm := frontmatter{end: closing + 1}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fm
	}

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		switch strings.ToLower(key.Value) {
		case "title":
			if val.Kind == yaml.ScalarNode {
				fm.title = strings.TrimSpace(val.Value)
			}
		case "tags":
			fm.tags = collectTags(val)
		}
	}
	return fm
}

// collectTags accepts both a YAML sequence and a single scalar. Node lines
// are relative to the YAML block, which starts on the note's second line.
func collectTags(val *yaml.Node) map[int][]string {
	out := make(map[int][]string)
	add := func(n *yaml.Node) {
		name := strings.TrimPrefix(strings.TrimSpace(n.Value), "#")
		if name != "" {
			out[n.Line+1] = append(out[n.Line+1], name)
		}
	}
	switch val.Kind {
	case yaml.SequenceNode:
		for _, item := range val.Content {
			if item.Kind == yaml.ScalarNode {
				add(item)
			}
		}
	case yaml.ScalarNode:
		add(val)
	}
	return out
}
