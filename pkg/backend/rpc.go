package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/pkg/errors"

	"github.com/vito/tandem/pkg/run"
)

// JSON-RPC method names spoken by execution services.
const (
	methodExpressions = "tandem.expressions"
	methodDone        = "tandem.done"
	methodInterrupt   = "tandem.interrupt"
)

// expressionsParams is the wire form of an ExpressionsEvent.
type expressionsParams struct {
	Expressions []run.Span `json:"expressions"`
	Scope       *run.Span  `json:"scope,omitempty"`
}

// doneParams is the wire form of a DoneEvent.
type doneParams struct {
	Expression run.Result `json:"expression"`
}

// interruptResult is the wire form of an interrupt reply.
type interruptResult struct {
	CancelledRanges []run.Span `json:"cancelledRanges"`
}

// RPC is a Client speaking line-delimited JSON-RPC 2.0 over any
// read/write stream (a socket, a subprocess pipe). Execution events
// arrive as server notifications; interrupt is a call.
type RPC struct {
	cli    *jrpc2.Client
	conn   io.Closer
	events chan Event

	mu     sync.Mutex
	closed bool
}

var _ Client = (*RPC)(nil)

// DialRPC wraps an established connection. The returned client owns the
// connection and closes it on Close.
func DialRPC(conn io.ReadWriteCloser) *RPC {
	r := &RPC{
		conn:   conn,
		events: make(chan Event, 16),
	}
	r.cli = jrpc2.NewClient(channel.Line(conn, conn), &jrpc2.ClientOptions{
		OnNotify: r.onNotify,
	})
	return r
}

func (r *RPC) onNotify(req *jrpc2.Request) {
	var params json.RawMessage
	if err := req.UnmarshalParams(&params); err != nil {
		slog.Warn("undecodable backend notification", "method", req.Method(), "err", err)
		return
	}
	ev, err := decodeNotification(req.Method(), params)
	if err != nil {
		slog.Warn("unrecognized backend notification", "method", req.Method(), "err", err)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	select {
	case r.events <- ev:
	default:
		// Consumer stalled with a full buffer; dropping is preferable to
		// wedging the RPC dispatch goroutine.
		slog.Warn("dropping backend event", "method", req.Method())
	}
}

// decodeNotification maps a JSON-RPC notification onto an Event.
func decodeNotification(method string, params json.RawMessage) (Event, error) {
	switch method {
	case methodExpressions:
		var p expressionsParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errors.Wrapf(err, "decode %s", method)
		}
		return ExpressionsEvent{Spans: p.Expressions, Scope: p.Scope}, nil
	case methodDone:
		var p doneParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, errors.Wrapf(err, "decode %s", method)
		}
		return DoneEvent{Result: p.Expression}, nil
	default:
		return nil, errors.Errorf("unknown method %q", method)
	}
}

// Events implements Client.
func (r *RPC) Events() <-chan Event {
	return r.events
}

// Interrupt implements Client.
func (r *RPC) Interrupt(ctx context.Context) ([]run.Span, error) {
	rsp, err := r.cli.Call(ctx, methodInterrupt, nil)
	if err != nil {
		return nil, errors.Wrap(err, "interrupt")
	}
	var res interruptResult
	if err := rsp.UnmarshalResult(&res); err != nil {
		return nil, errors.Wrap(err, "decode interrupt result")
	}
	return res.CancelledRanges, nil
}

// Close implements Client.
func (r *RPC) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	r.cli.Close()
	return r.conn.Close()
}
