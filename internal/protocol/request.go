// Package protocol implements the line-delimited JSON bridge: one request
// object per input line, one response object per output line.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/models"
)

// Actions.
const (
	ActionConnect     = "connect"
	ActionHealthCheck = "health_check"
	ActionUpdateNote  = "update_note"
	ActionDeleteNote  = "delete_note"
	ActionQuery       = "query"
	ActionReindex     = "reindex"
	ActionStats       = "stats"
	ActionQuit        = "quit"
)

// Request is one of the typed requests below.
type Request interface {
	Action() string
	Validate() error
}

type ConnectRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type HealthCheckRequest struct{}

type UpdateNoteRequest struct {
	NoteParams
}

type DeleteNoteRequest struct {
	Path string `json:"path"`
}

type QueryRequest struct {
	Cypher string         `json:"cypher"`
	Params map[string]any `json:"params"`
}

type ReindexRequest struct {
	Notes []NoteParams `json:"notes"`
}

type StatsRequest struct{}

type QuitRequest struct{}

func (*ConnectRequest) Action() string     { return ActionConnect }
func (*HealthCheckRequest) Action() string { return ActionHealthCheck }
func (*UpdateNoteRequest) Action() string  { return ActionUpdateNote }
func (*DeleteNoteRequest) Action() string  { return ActionDeleteNote }
func (*QueryRequest) Action() string       { return ActionQuery }
func (*ReindexRequest) Action() string     { return ActionReindex }
func (*StatsRequest) Action() string       { return ActionStats }
func (*QuitRequest) Action() string        { return ActionQuit }

func (r *ConnectRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Host, validation.Required),
		validation.Field(&r.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

func (*HealthCheckRequest) Validate() error { return nil }
func (*StatsRequest) Validate() error       { return nil }
func (*QuitRequest) Validate() error        { return nil }

func (r *DeleteNoteRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Path, validation.Required),
	)
}

func (r *QueryRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Cypher, validation.Required),
	)
}

// Validate checks only the envelope; each note is validated on its own so
// one bad note does not reject the batch.
func (r *ReindexRequest) Validate() error { return nil }

// NoteParams is the wire form of one note.
type NoteParams struct {
	Path         string          `json:"path"`
	Title        string          `json:"title"`
	Content      string          `json:"content"`
	LastModified string          `json:"last_modified,omitempty"`
	Wikilinks    []WikilinkParam `json:"wikilinks"`
	Mentions     []EntityParam   `json:"mentions"`
	Hashtags     []EntityParam   `json:"hashtags"`
}

func (p NoteParams) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Path, validation.Required),
		validation.Field(&p.LastModified, validation.Date(time.RFC3339)),
		validation.Field(&p.Wikilinks),
		validation.Field(&p.Mentions),
		validation.Field(&p.Hashtags),
	)
}

// NoteInput converts the wire form for the sync engine.
func (p NoteParams) NoteInput() graphsync.NoteInput {
	in := graphsync.NoteInput{
		Path:         strings.TrimSpace(p.Path),
		Title:        p.Title,
		Content:      p.Content,
		LastModified: p.LastModified,
	}
	for _, w := range p.Wikilinks {
		in.Entities.Links = append(in.Entities.Links, models.LinkRef{
			Target:     w.Target,
			TargetPath: w.TargetPath,
			Display:    w.Display,
			Line:       w.LineNumber,
		})
	}
	for _, m := range p.Mentions {
		in.Entities.Mentions = append(in.Entities.Mentions, models.MentionRef{Name: m.Name, Line: m.LineNumber})
	}
	for _, h := range p.Hashtags {
		in.Entities.Tags = append(in.Entities.Tags, models.TagRef{Name: h.Name, Line: h.LineNumber})
	}
	return in
}

type WikilinkParam struct {
	Target     string `json:"target"`
	TargetPath string `json:"target_path,omitempty"`
	Display    string `json:"display,omitempty"`
	LineNumber int    `json:"line_number"`
}

func (w WikilinkParam) Validate() error {
	return validation.ValidateStruct(&w,
		validation.Field(&w.LineNumber, validation.Min(0)),
	)
}

// EntityParam is a mention or hashtag.
type EntityParam struct {
	Name       string `json:"name"`
	LineNumber int    `json:"line_number"`
}

func (e EntityParam) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.LineNumber, validation.Min(0)),
	)
}

type envelope struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params"`
}

// requiredParams lists the keys that must be present, even when empty.
var requiredParams = map[string][]string{
	ActionConnect:    {"host", "port"},
	ActionUpdateNote: {"path", "title", "content", "wikilinks", "mentions", "hashtags"},
	ActionDeleteNote: {"path"},
	ActionQuery:      {"cypher"},
	ActionReindex:    {"notes"},
}

func newRequest(action string) Request {
	switch action {
	case ActionConnect:
		return &ConnectRequest{}
	case ActionHealthCheck:
		return &HealthCheckRequest{}
	case ActionUpdateNote:
		return &UpdateNoteRequest{}
	case ActionDeleteNote:
		return &DeleteNoteRequest{}
	case ActionQuery:
		return &QueryRequest{}
	case ActionReindex:
		return &ReindexRequest{}
	case ActionStats:
		return &StatsRequest{}
	case ActionQuit:
		return &QuitRequest{}
	}
	return nil
}

// Parse decodes and validates one request line. Malformed JSON and unknown
// actions are protocol errors; bad parameters are validation errors.
func Parse(line []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, apperr.Protocol(err, "invalid JSON")
	}
	if env.Action == "" {
		return nil, apperr.Protocol(nil, "missing action")
	}
	req := newRequest(env.Action)
	if req == nil {
		return nil, apperr.Protocol(nil, "unknown action: %s", env.Action)
	}

	params := bytes.TrimSpace(env.Params)
	if len(params) == 0 || bytes.Equal(params, []byte("null")) {
		params = []byte("{}")
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(params, &keys); err != nil {
		return nil, apperr.Validation(err, "%s: params must be an object", env.Action)
	}
	if missing := missingKeys(keys, requiredParams[env.Action]); len(missing) > 0 {
		return nil, apperr.Validation(nil, "%s: missing parameter(s): %s", env.Action, strings.Join(missing, ", "))
	}
	if err := json.Unmarshal(params, req); err != nil {
		return nil, apperr.Validation(err, "%s: malformed params", env.Action)
	}
	if err := req.Validate(); err != nil {
		return nil, apperr.Validation(err, "%s: invalid params", env.Action)
	}
	return req, nil
}

func missingKeys(keys map[string]json.RawMessage, required []string) []string {
	var missing []string
	for _, k := range required {
		v, ok := keys[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

// describe summarises a request for debug logs.
func describe(r Request) string {
	switch v := r.(type) {
	case *UpdateNoteRequest:
		return fmt.Sprintf("%s %s", v.Action(), v.Path)
	case *DeleteNoteRequest:
		return fmt.Sprintf("%s %s", v.Action(), v.Path)
	case *ReindexRequest:
		return fmt.Sprintf("%s (%d notes)", v.Action(), len(v.Notes))
	default:
		return r.Action()
	}
}
