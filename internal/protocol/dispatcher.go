package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/mdgraph/internal/apperr"
	"github.com/starford/mdgraph/internal/graphsync"
	"github.com/starford/mdgraph/internal/query"
	"github.com/starford/mdgraph/internal/session"
)

// Response is written as one JSON line per request.
type Response struct {
	Success bool    `json:"success"`
	Data    any     `json:"data"`
	Error   *string `json:"error"`
}

func ok(data any) Response { return Response{Success: true, Data: data} }

func fail(err error) Response {
	msg := err.Error()
	return Response{Error: &msg}
}

// Dispatcher routes bridge requests to the session manager, the sync engine
// and the query service.
type Dispatcher struct {
	sessions *session.Manager
	engine   *graphsync.Engine
	queries  *query.Service
	log      *slog.Logger
}

// New returns a Dispatcher.
func New(sessions *session.Manager, engine *graphsync.Engine, queries *query.Service, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sessions: sessions, engine: engine, queries: queries, log: log}
}

// Serve reads requests from r and writes one response per request to w,
// flushing after each. It returns nil on quit or end of input. A request
// that fails never ends the loop.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, readErr := br.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			resp, quit := d.Handle(ctx, []byte(line))
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("protocol: write response: %w", err)
			}
			if err := bw.Flush(); err != nil {
				return fmt.Errorf("protocol: flush: %w", err)
			}
			if quit {
				d.log.Info("bridge quit")
				return nil
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("protocol: read request: %w", readErr)
		}
	}
}

// Handle processes a single request line. The second result is true when
// the request asked the bridge to stop.
func (d *Dispatcher) Handle(ctx context.Context, line []byte) (resp Response, quit bool) {
	id := uuid.NewString()
	start := time.Now()
	log := d.log.With(slog.String("request_id", id))

	defer func() {
		if p := recover(); p != nil {
			log.Error("request panicked", slog.Any("panic", p))
			resp, quit = fail(fmt.Errorf("internal error: %v", p)), false
		}
	}()

	req, err := Parse(line)
	if err != nil {
		log.Debug("rejected request", slog.String("error", err.Error()))
		return fail(err), false
	}
	log.Debug("request", slog.String("action", describe(req)))

	data, err := d.dispatch(ctx, req)
	if err != nil {
		log.Debug("request failed",
			slog.String("action", req.Action()),
			slog.String("kind", string(apperr.KindOf(err))),
			slog.String("error", err.Error()),
			slog.Duration("took", time.Since(start)),
		)
		return fail(err), false
	}
	log.Debug("request done", slog.String("action", req.Action()), slog.Duration("took", time.Since(start)))
	_, quit = req.(*QuitRequest)
	return ok(data), quit
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case *ConnectRequest:
		t := session.Target{Host: r.Host, Port: r.Port}
		if err := d.sessions.Connect(ctx, t); err != nil {
			return nil, err
		}
		return map[string]string{"message": "connected to " + t.String()}, nil

	case *HealthCheckRequest:
		if d.sessions.State() != session.Connected {
			return nil, apperr.Connection(nil, "not connected")
		}
		if !d.sessions.HealthCheck(ctx) {
			return nil, apperr.Connection(nil, "health check failed")
		}
		return map[string]string{"status": "healthy"}, nil

	case *UpdateNoteRequest:
		return d.engine.UpsertNote(ctx, r.NoteInput())

	case *DeleteNoteRequest:
		path := strings.TrimSpace(r.Path)
		if err := d.engine.DeleteNote(ctx, path); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": path}, nil

	case *QueryRequest:
		return d.queries.Raw(ctx, r.Cypher, r.Params)

	case *ReindexRequest:
		return d.reindex(ctx, r)

	case *StatsRequest:
		return d.queries.GraphStats(ctx)

	case *QuitRequest:
		return map[string]string{"message": "bye"}, nil
	}
	return nil, apperr.Protocol(nil, "unhandled action: %s", req.Action())
}

// reindex reports notes with malformed entity lists alongside the ones the
// engine rejects; only the rest reach the graph.
func (d *Dispatcher) reindex(ctx context.Context, r *ReindexRequest) (graphsync.ReindexResult, error) {
	var rejected []graphsync.ReindexError
	inputs := make([]graphsync.NoteInput, 0, len(r.Notes))
	for _, n := range r.Notes {
		if err := n.Validate(); err != nil {
			rejected = append(rejected, graphsync.ReindexError{Path: n.Path, Error: err.Error()})
			continue
		}
		inputs = append(inputs, n.NoteInput())
	}
	res, err := d.engine.Reindex(ctx, inputs)
	if err != nil {
		return res, err
	}
	res.Total += len(rejected)
	res.Errors = append(rejected, res.Errors...)
	if res.Errors == nil {
		res.Errors = []graphsync.ReindexError{}
	}
	return res, nil
}
