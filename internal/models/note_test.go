package models

import "testing"

func TestStemOf(t *testing.T) {
	cases := map[string]string{
		"/notes/Project Plan.md": "project plan",
		"b":                      "b",
		"dir/sub/c.MD":           "c",
		`C:\notes\d.md`:          "d",
		"journal/2024-05-01.md":  "2024-05-01",
	}
	for in, want := range cases {
		if got := StemOf(in); got != want {
			t.Errorf("StemOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := PersonKey(" @Alice "); got != "alice" {
		t.Errorf("PersonKey = %q", got)
	}
	if got := TagKey("#Proj"); got != "proj" {
		t.Errorf("TagKey = %q", got)
	}
}

func TestLinkIdentifier(t *testing.T) {
	l := LinkRef{Target: "b", TargetPath: "/notes/b.md"}
	if l.Identifier() != "/notes/b.md" {
		t.Errorf("identifier = %q", l.Identifier())
	}
	l.TargetPath = "  "
	if l.Identifier() != "b" {
		t.Errorf("identifier = %q", l.Identifier())
	}
}

func TestPersonNoteOwner(t *testing.T) {
	if who, ok := PersonNoteOwner("/notes/people/Alice.md"); !ok || who != "alice" {
		t.Errorf("owner = %q, %v", who, ok)
	}
	if _, ok := PersonNoteOwner("/notes/projects/x.md"); ok {
		t.Error("projects note is not a person note")
	}
}

func TestLinkMatches(t *testing.T) {
	cases := []struct {
		key, path string
		want      bool
	}{
		{"b", "/v/sub/b.md", true},
		{"B.md", "/v/sub/b.md", true},
		{"sub/b", "/v/sub/b.md", true},
		{"sub/b.md", "/v/sub/b.md", true},
		{"sub/b", "/v/other/b.md", false},
		{"/v/sub/b.md", "/v/sub/b.md", true},
		{"/v/sub/b.md", "/v/other/b.md", false},
		{`C:\v\sub\b.md`, "/v/sub/b.md", false},
		{"b", "/v/sub/ab.md", false},
		{"b", "B", true},
		{"", "/v/b.md", false},
	}
	for _, c := range cases {
		if got := LinkMatches(c.key, c.path); got != c.want {
			t.Errorf("LinkMatches(%q, %q) = %v, want %v", c.key, c.path, got, c.want)
		}
	}
	if !IsAbsKey("/a/b.md") || !IsAbsKey(`D:\a\b.md`) || IsAbsKey("a/b") {
		t.Error("IsAbsKey misclassified a key")
	}
}
